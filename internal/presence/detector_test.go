package presence

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	name    string
	outcome Outcome
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Attempt(ctx context.Context, timeout time.Duration) Outcome {
	f.calls++
	return f.outcome
}

func newTestDetector(status, idle, liveness Outcome) (*Detector, *fakeProvider, *fakeProvider, *fakeProvider) {
	s := &fakeProvider{name: "status", outcome: status}
	i := &fakeProvider{name: "idle", outcome: idle}
	l := &fakeProvider{name: "liveness", outcome: liveness}
	d := NewDetector(s, i, l, Options{
		IdleThreshold: 300 * time.Second,
		FailureLimit:  3,
		ProbeTimeout:  time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return d, s, i, l
}

func TestStatusProviderWinsWhenAvailable(t *testing.T) {
	d, _, idle, live := newTestDetector(
		Outcome{OK: true, Status: StatusBusy},
		Outcome{OK: true, IdleSeconds: 900},
		Outcome{OK: true, Alive: false},
	)

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusBusy, Source: SourceStatus, Confidence: ConfidenceHigh}, got)
	assert.Zero(t, idle.calls, "idle must not be probed when status succeeds")
	assert.Zero(t, live.calls, "liveness must not be probed when status succeeds")
}

func TestIdleAboveThresholdMeansAway(t *testing.T) {
	d, _, _, live := newTestDetector(
		Outcome{},
		Outcome{OK: true, IdleSeconds: 320},
		Outcome{OK: true, Alive: true},
	)

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusAway, Source: SourceIdle, Confidence: ConfidenceMedium}, got)
	assert.Zero(t, live.calls, "liveness is unused once idle crosses the threshold")
}

func TestFreshInputWithAppRunningMeansAvailable(t *testing.T) {
	d, _, _, _ := newTestDetector(
		Outcome{},
		Outcome{OK: true, IdleSeconds: 10},
		Outcome{OK: true, Alive: true},
	)

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusAvailable, Source: SourceIdle, Confidence: ConfidenceMedium}, got)
}

func TestFreshInputWithAppNotRunningMeansOffline(t *testing.T) {
	d, _, _, _ := newTestDetector(
		Outcome{},
		Outcome{OK: true, IdleSeconds: 10},
		Outcome{OK: true, Alive: false},
	)

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusOffline, Source: SourceLiveness, Confidence: ConfidenceHigh}, got)
}

func TestIdleDownLivenessCarries(t *testing.T) {
	d, _, _, _ := newTestDetector(
		Outcome{},
		Outcome{},
		Outcome{OK: true, Alive: false},
	)

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusOffline, Source: SourceLiveness, Confidence: ConfidenceHigh}, got)
}

func TestIdleDownAppRunningIsUnknown(t *testing.T) {
	d, _, _, _ := newTestDetector(
		Outcome{},
		Outcome{},
		Outcome{OK: true, Alive: true},
	)

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusUnknown, Source: SourceLiveness, Confidence: ConfidenceLow}, got)
}

func TestAllSignalsDownIsUnknownError(t *testing.T) {
	d, _, _, _ := newTestDetector(Outcome{}, Outcome{}, Outcome{})

	got := d.Detect(context.Background())
	assert.Equal(t, Result{Status: StatusUnknown, Source: SourceError, Confidence: ConfidenceLow}, got)
}

func TestStatusSelfDisablesAfterLimit(t *testing.T) {
	d, status, _, _ := newTestDetector(
		Outcome{},
		Outcome{OK: true, IdleSeconds: 10},
		Outcome{OK: true, Alive: true},
	)

	for i := 0; i < 3; i++ {
		assert.False(t, d.StatusDisabled())
		d.Detect(context.Background())
	}
	assert.True(t, d.StatusDisabled())
	assert.Equal(t, 3, status.calls)

	// Once disabled the status probe is never invoked again.
	for i := 0; i < 5; i++ {
		d.Detect(context.Background())
	}
	assert.Equal(t, 3, status.calls)
}

func TestStatusSuccessResetsFailureCounter(t *testing.T) {
	d, status, _, _ := newTestDetector(
		Outcome{},
		Outcome{OK: true, IdleSeconds: 10},
		Outcome{OK: true, Alive: true},
	)

	d.Detect(context.Background())
	d.Detect(context.Background())

	// Two failures, then a success: the counter must restart.
	status.outcome = Outcome{OK: true, Status: StatusAvailable}
	d.Detect(context.Background())
	assert.False(t, d.StatusDisabled())

	status.outcome = Outcome{}
	d.Detect(context.Background())
	d.Detect(context.Background())
	assert.False(t, d.StatusDisabled())
	d.Detect(context.Background())
	assert.True(t, d.StatusDisabled())
}

func TestDetectNeverCachesResults(t *testing.T) {
	d, _, idle, _ := newTestDetector(
		Outcome{},
		Outcome{OK: true, IdleSeconds: 400},
		Outcome{OK: true, Alive: true},
	)

	assert.Equal(t, StatusAway, d.Detect(context.Background()).Status)

	idle.outcome = Outcome{OK: true, IdleSeconds: 5}
	assert.Equal(t, StatusAvailable, d.Detect(context.Background()).Status)
}
