package presence

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Outcome is a single provider's answer. Exactly one typed field is
// meaningful, selected by the provider that produced it; OK=false means the
// signal was unavailable (timeout, permission denial, unparseable output).
// Providers never return errors: every internal failure collapses to !OK.
type Outcome struct {
	OK          bool
	Status      Status  // status provider
	IdleSeconds float64 // idle provider
	Alive       bool    // liveness provider
}

func unavailable() Outcome {
	return Outcome{}
}

// Provider is one presence signal. Attempt must return within the given
// timeout and must not panic or propagate failures.
type Provider interface {
	Name() string
	Attempt(ctx context.Context, timeout time.Duration) Outcome
}

// runFunc executes an external probe and returns its stdout. Swapped out in
// tests.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// statusScript asks System Events for the literal presence text Teams shows
// in its UI. This surface is gated behind the Accessibility permission and
// has moved between Teams releases; any failure mode is expected.
const statusScript = `
tell application "System Events"
	tell process "Microsoft Teams"
		get value of attribute "AXDescription" of menu bar item 1 of menu bar 2
	end tell
end tell
`

// StatusProvider probes the Teams UI for literal status text.
type StatusProvider struct {
	run runFunc
}

// NewStatusProvider returns the high-fidelity UI status probe.
func NewStatusProvider() *StatusProvider {
	return &StatusProvider{run: runCommand}
}

func (p *StatusProvider) Name() string { return string(SourceStatus) }

// Attempt queries the UI and normalizes the answer. Unrecognized text is
// treated identically to a failed probe.
func (p *StatusProvider) Attempt(ctx context.Context, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := p.run(ctx, "osascript", "-e", statusScript)
	if err != nil {
		return unavailable()
	}
	status, ok := Normalize(string(out))
	if !ok {
		return unavailable()
	}
	return Outcome{OK: true, Status: status}
}

// IdleProvider reads system-wide human-input idle time from the HID system.
type IdleProvider struct {
	run runFunc
}

// NewIdleProvider returns the input idle-time probe.
func NewIdleProvider() *IdleProvider {
	return &IdleProvider{run: runCommand}
}

func (p *IdleProvider) Name() string { return string(SourceIdle) }

func (p *IdleProvider) Attempt(ctx context.Context, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := p.run(ctx, "ioreg", "-c", "IOHIDSystem")
	if err != nil {
		return unavailable()
	}
	seconds, ok := parseIdleSeconds(string(out))
	if !ok {
		return unavailable()
	}
	return Outcome{OK: true, IdleSeconds: seconds}
}

// parseIdleSeconds extracts HIDIdleTime (nanoseconds) from ioreg output and
// converts it to seconds.
func parseIdleSeconds(out string) (float64, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "HIDIdleTime") {
			continue
		}
		_, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		ns, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		return ns / 1e9, true
	}
	return 0, false
}

// teamsProcessNames covers the process renames across Teams releases.
var teamsProcessNames = []string{"MSTeams", "Microsoft Teams", "Teams"}

// LivenessProvider checks whether any known Teams process is running.
type LivenessProvider struct {
	run   runFunc
	names []string
}

// NewLivenessProvider returns the process-table liveness probe.
func NewLivenessProvider() *LivenessProvider {
	return &LivenessProvider{run: runCommand, names: teamsProcessNames}
}

func (p *LivenessProvider) Name() string { return string(SourceLiveness) }

// Attempt reports alive if any known process name matches. It reports
// not-alive only when every probe ran cleanly and none matched; a failed
// probe with no match is unavailable, not a verdict.
func (p *LivenessProvider) Attempt(ctx context.Context, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	anyFailed := false
	for _, name := range p.names {
		_, err := p.run(ctx, "pgrep", "-x", name)
		if err == nil {
			return Outcome{OK: true, Alive: true}
		}
		// pgrep exits 1 for "no process matched"; anything else is a
		// probe failure.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			anyFailed = true
		}
	}
	if anyFailed {
		return unavailable()
	}
	return Outcome{OK: true, Alive: false}
}
