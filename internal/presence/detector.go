package presence

import (
	"context"
	"log/slog"
	"time"
)

// Detector runs the providers as a strict fallback chain and owns the
// self-disable state for the status probe. It is driven by a single
// goroutine (the event loop); no locking.
type Detector struct {
	status   Provider
	idle     Provider
	liveness Provider
	logger   *slog.Logger

	idleThreshold time.Duration
	failureLimit  int
	probeTimeout  time.Duration

	statusFailures int
	statusDisabled bool
}

// Options configures a Detector.
type Options struct {
	IdleThreshold time.Duration // idle time at or above which the user counts as away
	FailureLimit  int           // consecutive status failures before self-disable
	ProbeTimeout  time.Duration // per-provider timeout
}

// NewDetector wires the three providers into a fallback chain.
func NewDetector(status, idle, liveness Provider, opts Options, logger *slog.Logger) *Detector {
	return &Detector{
		status:        status,
		idle:          idle,
		liveness:      liveness,
		logger:        logger,
		idleThreshold: opts.IdleThreshold,
		failureLimit:  opts.FailureLimit,
		probeTimeout:  opts.ProbeTimeout,
	}
}

// StatusDisabled reports whether the status probe has been self-disabled.
func (d *Detector) StatusDisabled() bool {
	return d.statusDisabled
}

// Detect produces one presence snapshot. The chain re-runs from the top on
// every call; nothing is cached. An all-signals-down cycle is not an error,
// it is the Unknown terminal state.
func (d *Detector) Detect(ctx context.Context) Result {
	if !d.statusDisabled {
		if out := d.status.Attempt(ctx, d.probeTimeout); out.OK {
			d.statusFailures = 0
			return Result{Status: out.Status, Source: SourceStatus, Confidence: ConfidenceHigh}
		}
		d.statusFailures++
		d.logger.Debug("status probe unavailable", "consecutive_failures", d.statusFailures)
		if d.statusFailures >= d.failureLimit {
			d.statusDisabled = true
			d.logger.Warn("status probe self-disabled for the rest of the process lifetime",
				"consecutive_failures", d.statusFailures)
		}
	}

	if out := d.idle.Attempt(ctx, d.probeTimeout); out.OK {
		if out.IdleSeconds >= d.idleThreshold.Seconds() {
			return Result{Status: StatusAway, Source: SourceIdle, Confidence: ConfidenceMedium}
		}
		if live := d.liveness.Attempt(ctx, d.probeTimeout); live.OK && !live.Alive {
			return Result{Status: StatusOffline, Source: SourceLiveness, Confidence: ConfidenceHigh}
		}
		// Fresh input means someone is at the keyboard, whether or not the
		// liveness probe answered.
		return Result{Status: StatusAvailable, Source: SourceIdle, Confidence: ConfidenceMedium}
	}

	if live := d.liveness.Attempt(ctx, d.probeTimeout); live.OK {
		if !live.Alive {
			return Result{Status: StatusOffline, Source: SourceLiveness, Confidence: ConfidenceHigh}
		}
		// Running, but with no idle signal there is no way to tell active
		// from away.
		return Result{Status: StatusUnknown, Source: SourceLiveness, Confidence: ConfidenceLow}
	}

	return Result{Status: StatusUnknown, Source: SourceError, Confidence: ConfidenceLow}
}
