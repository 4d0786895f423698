// Package daemon runs the watch → detect → gate → read → relay → persist
// cycle that ties the engine together.
//
// The loop is single-threaded with exactly one suspension point (the change
// wait). Presence is resolved once per iteration so every record in a batch
// is gated by the same snapshot, and the cursor advances and persists
// whenever records were read, no matter what the gate decided. Skipping that
// persist on suppressed batches would replay every suppressed record the
// moment presence flips.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/hookline/nchook/internal/gate"
	"github.com/hookline/nchook/internal/notifdb"
	"github.com/hookline/nchook/internal/presence"
	"github.com/hookline/nchook/internal/relay"
	"github.com/hookline/nchook/internal/telemetry"
)

// Waiter blocks until the store is mutated or the timeout elapses.
type Waiter interface {
	WaitForChange(ctx context.Context, timeout time.Duration) bool
}

// Source reads records newer than the cursor from the external store.
type Source interface {
	ReadNew(ctx context.Context, cursor int64) ([]notifdb.Record, int64, error)
}

// PresenceDetector produces one presence snapshot per call.
type PresenceDetector interface {
	Detect(ctx context.Context) presence.Result
}

// CursorStore persists the high-water mark.
type CursorStore interface {
	Load() int64
	Save(cursor int64) error
}

// Options holds the loop's policy knobs.
type Options struct {
	PollInterval   time.Duration
	PresenceGating bool
}

// Daemon is the event loop. It owns the cursor exclusively.
type Daemon struct {
	waiter   Waiter
	detector PresenceDetector
	source   Source
	store    CursorStore
	relayer  relay.Relayer
	opts     Options
	logger   *slog.Logger

	cursor int64

	mCycles       metric.Int64Counter
	mRead         metric.Int64Counter
	mForwarded    metric.Int64Counter
	mSuppressed   metric.Int64Counter
	mPurgeResets  metric.Int64Counter
	mSaveFailures metric.Int64Counter
}

// New wires the engine's components into a loop.
func New(waiter Waiter, detector PresenceDetector, source Source, store CursorStore, relayer relay.Relayer, opts Options, logger *slog.Logger) *Daemon {
	d := &Daemon{
		waiter:   waiter,
		detector: detector,
		source:   source,
		store:    store,
		relayer:  relayer,
		opts:     opts,
		logger:   logger,
	}
	d.registerMetrics()
	return d
}

// Cursor returns the in-memory high-water mark.
func (d *Daemon) Cursor() int64 {
	return d.cursor
}

// Run executes the loop until ctx is cancelled. The shutdown signal is
// observed only at the top of an iteration; an in-flight iteration always
// completes, including its cursor persist.
func (d *Daemon) Run(ctx context.Context) {
	d.cursor = d.store.Load()
	d.logger.Info("event loop started",
		"cursor", d.cursor,
		"poll_interval", d.opts.PollInterval,
		"presence_gating", d.opts.PresenceGating)

	for {
		triggered := d.waiter.WaitForChange(ctx, d.opts.PollInterval)
		if ctx.Err() != nil {
			d.logger.Info("event loop stopped", "cursor", d.cursor)
			return
		}
		// Sub-calls get a non-cancellable context: iterations finish on
		// their own bounded timeouts rather than being torn mid-cycle.
		d.runCycle(context.WithoutCancel(ctx), triggered)
	}
}

func (d *Daemon) runCycle(ctx context.Context, triggered bool) {
	d.mCycles.Add(ctx, 1)

	pres := d.detector.Detect(ctx)
	forward := gate.ShouldForward(pres, d.opts.PresenceGating)

	records, maxID, err := d.source.ReadNew(ctx, d.cursor)
	if err != nil {
		if errors.Is(err, notifdb.ErrBusy) {
			d.logger.Debug("store busy, retrying next cycle")
			return
		}
		d.logger.Error("reading store failed", "error", err)
		return
	}

	if maxID < d.cursor {
		d.logger.Warn("store purge detected, resetting cursor",
			"persisted_cursor", d.cursor, "store_max", maxID)
		d.mPurgeResets.Add(ctx, 1)
		d.cursor = 0
		records, maxID, err = d.source.ReadNew(ctx, 0)
		if err != nil {
			if !errors.Is(err, notifdb.ErrBusy) {
				d.logger.Error("re-reading store after purge failed", "error", err)
			}
			return
		}
	}

	if len(records) == 0 {
		if triggered {
			d.logger.Debug("change event carried no new records")
		}
		return
	}
	d.mRead.Add(ctx, int64(len(records)))

	if forward {
		for _, rec := range records {
			d.relayer.Relay(ctx, rec, pres)
		}
		d.mForwarded.Add(ctx, int64(len(records)))
	} else {
		// Suppressed records are logged as a batch, not per record.
		d.logger.Info("suppressed batch",
			"count", len(records),
			"status", pres.Status,
			"source", pres.Source)
		d.mSuppressed.Add(ctx, int64(len(records)))
	}

	// The cursor advances and persists regardless of the gate's decision.
	d.cursor = records[len(records)-1].RecID
	if err := d.store.Save(d.cursor); err != nil {
		// Severe: an unpersisted cursor risks replay or loss after a
		// restart. Keep the in-memory cursor and retry on later cycles.
		d.logger.Error("persisting cursor failed", "cursor", d.cursor, "error", err)
		d.mSaveFailures.Add(ctx, 1)
	}
}

func (d *Daemon) registerMetrics() {
	meter := telemetry.Meter("nchook/daemon")
	d.mCycles, _ = meter.Int64Counter("nchook.loop.cycles",
		metric.WithDescription("Completed poll cycles"))
	d.mRead, _ = meter.Int64Counter("nchook.records.read",
		metric.WithDescription("Records read from the notification store"))
	d.mForwarded, _ = meter.Int64Counter("nchook.records.forwarded",
		metric.WithDescription("Records handed to the relay"))
	d.mSuppressed, _ = meter.Int64Counter("nchook.records.suppressed",
		metric.WithDescription("Records suppressed by the presence gate"))
	d.mPurgeResets, _ = meter.Int64Counter("nchook.store.purge_resets",
		metric.WithDescription("Cursor resets after a store purge"))
	d.mSaveFailures, _ = meter.Int64Counter("nchook.state.save_failures",
		metric.WithDescription("Failed cursor persists"))
}
