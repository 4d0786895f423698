// Command nchook watches the macOS Notification Center database and relays
// new notifications to a webhook when the user is inferred to be away.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hookline/nchook/internal/config"
	"github.com/hookline/nchook/internal/daemon"
	"github.com/hookline/nchook/internal/notifdb"
	"github.com/hookline/nchook/internal/presence"
	"github.com/hookline/nchook/internal/relay"
	"github.com/hookline/nchook/internal/state"
	"github.com/hookline/nchook/internal/telemetry"
	"github.com/hookline/nchook/internal/watch"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	switch os.Getenv("NCHOOK_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (launchd deployments won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("nchook starting", "version", version)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Startup validation is fatal: running blind against an unreadable or
	// foreign store would be silently nonfunctional.
	paths := notifdb.Paths{DB: cfg.DBPath, WAL: cfg.DBPath + "-wal"}
	if cfg.DBPath == "" {
		paths, err = notifdb.DetectPaths(ctx)
		if err != nil {
			return err
		}
	}

	db, err := notifdb.Open(paths.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Validate(ctx); err != nil {
		return err
	}

	store := state.New(cfg.StatePath)
	cursor := store.Load()

	detector := watch.New(paths.DB, paths.WAL, logger)
	defer detector.Close()

	presenceDetector := presence.NewDetector(
		presence.NewStatusProvider(),
		presence.NewIdleProvider(),
		presence.NewLivenessProvider(),
		presence.Options{
			IdleThreshold: cfg.IdleThreshold,
			FailureLimit:  cfg.StatusFailureLimit,
			ProbeTimeout:  cfg.ProbeTimeout,
		},
		logger,
	)

	relayer := relay.NewWebhook(cfg.WebhookURL, cfg.DeliveryTimeout, cfg.AppAllowlist, cfg.NoiseDenylist, logger)

	slog.Info("startup validation passed",
		"db_path", paths.DB,
		"state_path", cfg.StatePath,
		"cursor", cursor,
		"presence_gating", cfg.PresenceGating,
		"webhook", cfg.WebhookURL)

	d := daemon.New(detector, presenceDetector, db, store, relayer, daemon.Options{
		PollInterval:   cfg.PollInterval,
		PresenceGating: cfg.PresenceGating,
	}, logger)

	d.Run(ctx)
	return nil
}
