package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NCHOOK_WEBHOOK_URL", "http://localhost:9000/hook")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.IdleThreshold)
	assert.Equal(t, 3, cfg.StatusFailureLimit)
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	assert.True(t, cfg.PresenceGating)
	assert.Empty(t, cfg.AppAllowlist)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRequiresWebhookURL(t *testing.T) {
	t.Setenv("NCHOOK_WEBHOOK_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NCHOOK_WEBHOOK_URL")
}

func TestValidateProbeTimeoutBelowPollInterval(t *testing.T) {
	t.Setenv("NCHOOK_WEBHOOK_URL", "http://localhost:9000/hook")
	t.Setenv("NCHOOK_POLL_INTERVAL", "5s")
	t.Setenv("NCHOOK_PROBE_TIMEOUT", "5s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NCHOOK_PROBE_TIMEOUT")
}

func TestEnvListSplitsAndTrims(t *testing.T) {
	t.Setenv("NCHOOK_APP_ALLOWLIST", "com.microsoft.teams2, com.apple.mail ,")

	got := envList("NCHOOK_APP_ALLOWLIST", nil)
	assert.Equal(t, []string{"com.microsoft.teams2", "com.apple.mail"}, got)
}

func TestEnvHelpersFallBackOnInvalid(t *testing.T) {
	t.Setenv("NCHOOK_STATUS_FAILURE_LIMIT", "not-a-number")
	t.Setenv("NCHOOK_POLL_INTERVAL", "sometime")
	t.Setenv("NCHOOK_PRESENCE_GATING", "maybe")

	assert.Equal(t, 3, envInt("NCHOOK_STATUS_FAILURE_LIMIT", 3))
	assert.Equal(t, 30*time.Second, envDuration("NCHOOK_POLL_INTERVAL", 30*time.Second))
	assert.True(t, envBool("NCHOOK_PRESENCE_GATING", true))
}
