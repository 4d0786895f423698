// Package config loads and validates daemon configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all daemon configuration.
type Config struct {
	// Notification database settings.
	DBPath    string // Explicit database path; auto-detected when empty.
	StatePath string // Path to the persisted cursor file.

	// Loop settings.
	PollInterval time.Duration // Fallback wake-up interval when no WAL event arrives.

	// Presence settings.
	PresenceGating     bool          // When false, every record is forwarded.
	IdleThreshold      time.Duration // Input idle time above which the user counts as away.
	StatusFailureLimit int           // Consecutive status-probe failures before self-disable.
	ProbeTimeout       time.Duration // Per-probe subprocess timeout.

	// Relay settings.
	WebhookURL      string
	DeliveryTimeout time.Duration // Per-attempt HTTP timeout.
	AppAllowlist    []string      // Bundle identifiers to relay; empty means all.
	NoiseDenylist   []string      // Substrings that mark a notification as noise.

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		DBPath:             envStr("NCHOOK_DB_PATH", ""),
		StatePath:          envStr("NCHOOK_STATE_PATH", defaultStatePath()),
		PollInterval:       envDuration("NCHOOK_POLL_INTERVAL", 30*time.Second),
		PresenceGating:     envBool("NCHOOK_PRESENCE_GATING", true),
		IdleThreshold:      envDuration("NCHOOK_IDLE_THRESHOLD", 5*time.Minute),
		StatusFailureLimit: envInt("NCHOOK_STATUS_FAILURE_LIMIT", 3),
		ProbeTimeout:       envDuration("NCHOOK_PROBE_TIMEOUT", 5*time.Second),
		WebhookURL:         envStr("NCHOOK_WEBHOOK_URL", ""),
		DeliveryTimeout:    envDuration("NCHOOK_DELIVERY_TIMEOUT", 10*time.Second),
		AppAllowlist:       envList("NCHOOK_APP_ALLOWLIST", nil),
		NoiseDenylist:      envList("NCHOOK_NOISE_DENYLIST", nil),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "nchook"),
		LogLevel:           envStr("NCHOOK_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("config: NCHOOK_WEBHOOK_URL is required")
	}
	if c.StatePath == "" {
		return fmt.Errorf("config: NCHOOK_STATE_PATH is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: NCHOOK_POLL_INTERVAL must be positive")
	}
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("config: NCHOOK_IDLE_THRESHOLD must be positive")
	}
	if c.StatusFailureLimit <= 0 {
		return fmt.Errorf("config: NCHOOK_STATUS_FAILURE_LIMIT must be positive")
	}
	// A hung probe must never stall the loop for more than one cycle.
	if c.ProbeTimeout <= 0 || c.ProbeTimeout >= c.PollInterval {
		return fmt.Errorf("config: NCHOOK_PROBE_TIMEOUT (%s) must be positive and strictly less than NCHOOK_POLL_INTERVAL (%s)",
			c.ProbeTimeout, c.PollInterval)
	}
	return nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "state.json"
	}
	return filepath.Join(home, ".local", "state", "nchook", "state.json")
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
