// Package presence infers whether the user is looking at their primary
// client, combining a high-fidelity but unreliable UI probe with two
// lower-fidelity but dependable system signals.
package presence

import "strings"

// Status is the canonical presence state. The set is closed: provider output
// that does not normalize into it is treated as a probe failure, never passed
// through as a novel status.
type Status string

const (
	StatusAvailable    Status = "available"
	StatusBusy         Status = "busy"
	StatusDoNotDisturb Status = "do_not_disturb"
	StatusAway         Status = "away"
	StatusBeRightBack  Status = "be_right_back"
	StatusOffline      Status = "offline"
	StatusUnknown      Status = "unknown"
)

// Source identifies which signal produced a Result.
type Source string

const (
	SourceStatus   Source = "status"   // UI status text probe
	SourceIdle     Source = "idle"     // system input idle time
	SourceLiveness Source = "liveness" // process-table lookup
	SourceError    Source = "error"    // every signal unavailable
)

// Confidence grades how much a Result should be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Result is the per-cycle presence snapshot. It is produced fresh on every
// Detect call and never cached.
type Result struct {
	Status     Status
	Source     Source
	Confidence Confidence
}

// statusTable maps the literal strings Teams exposes through its UI onto the
// canonical set. Teams has renamed these across releases; unlisted text is
// rejected rather than guessed at.
var statusTable = map[string]Status{
	"available":      StatusAvailable,
	"busy":           StatusBusy,
	"in a call":      StatusBusy,
	"in a meeting":   StatusBusy,
	"presenting":     StatusDoNotDisturb,
	"do not disturb": StatusDoNotDisturb,
	"focusing":       StatusDoNotDisturb,
	"away":           StatusAway,
	"appear away":    StatusAway,
	"be right back":  StatusBeRightBack,
	"offline":        StatusOffline,
	"appear offline": StatusOffline,
}

// Normalize maps raw UI status text to a canonical Status. The second return
// is false for anything outside the known table.
func Normalize(raw string) (Status, bool) {
	s, ok := statusTable[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}
