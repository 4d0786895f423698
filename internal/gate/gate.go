// Package gate decides whether a poll cycle forwards or suppresses records.
package gate

import "github.com/hookline/nchook/internal/presence"

// forwardable is the set of statuses that mean the user is not looking at
// their primary client. Anything the chain cannot confidently resolve lands
// on Unknown, which forwards: the policy is fail-open, trading duplicates
// for never silently dropping a notification.
var forwardable = map[presence.Status]bool{
	presence.StatusAway:         true,
	presence.StatusBeRightBack:  true,
	presence.StatusBusy:         true,
	presence.StatusDoNotDisturb: true,
	presence.StatusUnknown:      true,
}

// ShouldForward is a pure function of the presence snapshot and the gating
// toggle. With gating disabled it always forwards.
func ShouldForward(result presence.Result, gatingEnabled bool) bool {
	if !gatingEnabled {
		return true
	}
	return forwardable[result.Status]
}
