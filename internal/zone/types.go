// Package zone owns the irrigation outputs and enforces the runtime ceiling.
//
// A Monitor is the only writer of physical zone state. It consumes already
// classified command actions and a periodic sweep, and reports every
// resulting state change so the caller can publish confirmations.
// Time is always injected; nothing here sleeps or reads the clock.
package zone

import (
	"time"
)

// State is the actuation state of a zone output.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Cause records why a Change happened.
type Cause string

const (
	CauseCommand  Cause = "command"
	CauseSafety   Cause = "safety_timeout"
	CauseShutdown Cause = "shutdown"
)

// MaxNameLen bounds zone names so they embed safely in discovery payloads.
const MaxNameLen = 48

// Writer drives physical zone outputs. Zones are 1-based.
type Writer interface {
	Set(zone int, on bool) error
}

// Spec describes one zone at construction time.
type Spec struct {
	Name string
}

// Zone is a point-in-time view of one zone.
// ActivatedAt is non-zero if and only if State is StateOn.
type Zone struct {
	Index       int
	Name        string
	State       State
	ActivatedAt time.Time
}

// Change is the outcome of applying an action or a sweep to one zone.
// State is the zone's state after the attempt and is what should be
// published, even when Err is set.
type Change struct {
	Zone        int
	Name        string
	Previous    State
	State       State
	Cause       Cause
	At          time.Time
	ActivatedAt time.Time // start of the run that ended, if Ended()
	Err         error
}

// Ended reports whether the change closed an ON period.
func (c Change) Ended() bool {
	return c.Previous == StateOn && c.State == StateOff
}

// RunTime is how long the zone was on, for changes that ended a run.
func (c Change) RunTime() time.Duration {
	if !c.Ended() {
		return 0
	}
	return c.At.Sub(c.ActivatedAt)
}
