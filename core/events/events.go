// Package events defines the notifications published on the event bus while
// a run progresses.
//
// Available event types:
//   - SessionEvent: a search closed at a charging point
//   - ThrottleEvent: a group's demand exceeded its cap on a tick
//   - RunEvent: a run started or finished
package events

import (
	"github.com/kilianp07/chargesim/core/model"
	"github.com/kilianp07/chargesim/core/power"
)

// SessionEvent is published for every closed charging session.
type SessionEvent struct {
	RunID   string
	Session model.ChargingSession
}

// ThrottleEvent is published when a group is scaled below its demand.
type ThrottleEvent struct {
	RunID string
	Time  float64
	Load  power.GroupLoad
}

// RunEvent marks the start ("started") or end ("finished", "aborted") of a run.
type RunEvent struct {
	RunID  string
	Action string
	Err    error
}
