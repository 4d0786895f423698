package gate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hookline/nchook/internal/gate"
	"github.com/hookline/nchook/internal/presence"
)

func TestForwardSuppressPartition(t *testing.T) {
	cases := []struct {
		status  presence.Status
		forward bool
	}{
		{presence.StatusAway, true},
		{presence.StatusBeRightBack, true},
		{presence.StatusBusy, true},
		{presence.StatusDoNotDisturb, true},
		{presence.StatusUnknown, true},
		{presence.StatusAvailable, false},
		{presence.StatusOffline, false},
	}
	for _, tc := range cases {
		got := gate.ShouldForward(presence.Result{Status: tc.status}, true)
		assert.Equal(t, tc.forward, got, "status=%s", tc.status)
	}
}

func TestUnknownAlwaysForwards(t *testing.T) {
	// Fail-open: regardless of source or confidence, Unknown forwards.
	for _, src := range []presence.Source{presence.SourceError, presence.SourceLiveness} {
		result := presence.Result{Status: presence.StatusUnknown, Source: src, Confidence: presence.ConfidenceLow}
		assert.True(t, gate.ShouldForward(result, true))
	}
}

func TestGatingDisabledForwardsEverything(t *testing.T) {
	for _, status := range []presence.Status{
		presence.StatusAvailable, presence.StatusOffline, presence.StatusAway,
	} {
		assert.True(t, gate.ShouldForward(presence.Result{Status: status}, false))
	}
}
