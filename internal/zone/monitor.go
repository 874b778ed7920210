package zone

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/command"
)

// ErrNoCeiling is returned when a Monitor is built without a positive ceiling.
var ErrNoCeiling = errors.New("zone: max runtime must be positive")

// Monitor tracks every zone's state and enforces the runtime ceiling.
// Not safe for concurrent use: the control loop is its only caller.
type Monitor struct {
	zones   []Zone
	ceiling time.Duration
	out     Writer
}

// NewMonitor creates a Monitor and drives every output OFF.
// It fails if any output cannot be switched off, since the starting
// state would then be unknown.
func NewMonitor(specs []Spec, ceiling time.Duration, out Writer) (*Monitor, error) {
	if ceiling <= 0 {
		return nil, ErrNoCeiling
	}
	if len(specs) == 0 {
		return nil, errors.New("zone: at least one zone is required")
	}

	zones := make([]Zone, len(specs))
	for i, s := range specs {
		if len(s.Name) > MaxNameLen {
			return nil, fmt.Errorf("zone %d: name longer than %d bytes", i+1, MaxNameLen)
		}
		zones[i] = Zone{Index: i + 1, Name: s.Name, State: StateOff}
	}

	for i := range zones {
		if err := out.Set(i+1, false); err != nil {
			return nil, fmt.Errorf("zone %d: initialise output: %w", i+1, err)
		}
	}

	return &Monitor{
		zones:   zones,
		ceiling: ceiling,
		out:     out,
	}, nil
}

// Count returns the number of zones.
func (m *Monitor) Count() int {
	return len(m.zones)
}

// Zones returns a copy of every zone's current state, ordered by index.
func (m *Monitor) Zones() []Zone {
	out := make([]Zone, len(m.zones))
	copy(out, m.zones)
	return out
}

// Apply executes a classified command. It returns false when the action
// is Ignore or the zone is out of range; nothing is actuated or published.
//
// Redundant commands leave the output untouched but still return a Change so
// the confirmation is republished. A repeated Activate never extends a run.
func (m *Monitor) Apply(zone int, action command.Action, now time.Time) (Change, bool) {
	if zone < 1 || zone > len(m.zones) {
		return Change{}, false
	}

	switch action {
	case command.ActionActivate:
		return m.turnOn(zone, now), true
	case command.ActionDeactivate:
		return m.turnOff(zone, now, CauseCommand), true
	default:
		return Change{}, false
	}
}

// Sweep forces OFF every zone that has been ON for at least the ceiling.
// A zone whose output fails to switch off stays ON and is retried on the
// next sweep.
func (m *Monitor) Sweep(now time.Time) []Change {
	var changes []Change
	for i := range m.zones {
		z := &m.zones[i]
		if z.State != StateOn {
			continue
		}
		if now.Sub(z.ActivatedAt) < m.ceiling {
			continue
		}
		changes = append(changes, m.turnOff(z.Index, now, CauseSafety))
	}
	return changes
}

// AllOff switches every zone OFF, reporting a Change for each zone.
func (m *Monitor) AllOff(now time.Time, cause Cause) []Change {
	changes := make([]Change, 0, len(m.zones))
	for i := range m.zones {
		z := &m.zones[i]
		if z.State != StateOn {
			// Outputs are rewritten anyway: shutdown must leave nothing energised.
			err := m.out.Set(z.Index, false)
			changes = append(changes, Change{
				Zone: z.Index, Name: z.Name,
				Previous: StateOff, State: StateOff,
				Cause: cause, At: now, Err: err,
			})
			continue
		}
		changes = append(changes, m.turnOff(z.Index, now, cause))
	}
	return changes
}

// Due reports whether any running zone has reached the ceiling at now.
func (m *Monitor) Due(now time.Time) bool {
	for _, z := range m.zones {
		if z.State == StateOn && now.Sub(z.ActivatedAt) >= m.ceiling {
			return true
		}
	}
	return false
}

// NextDeadline returns the earliest time after now at which a running zone
// reaches the ceiling. Zones already past their deadline are not reported;
// they are waiting on a retried shutoff and the next sweep handles them.
func (m *Monitor) NextDeadline(now time.Time) (time.Time, bool) {
	var next time.Time
	for _, z := range m.zones {
		if z.State != StateOn {
			continue
		}
		d := z.ActivatedAt.Add(m.ceiling)
		if !d.After(now) {
			continue
		}
		if next.IsZero() || d.Before(next) {
			next = d
		}
	}
	return next, !next.IsZero()
}

func (m *Monitor) turnOn(zone int, now time.Time) Change {
	z := &m.zones[zone-1]
	c := Change{
		Zone: z.Index, Name: z.Name,
		Previous: z.State, Cause: CauseCommand, At: now,
	}

	if z.State == StateOn {
		c.State = StateOn
		c.ActivatedAt = z.ActivatedAt
		return c
	}

	if err := m.out.Set(z.Index, true); err != nil {
		c.State = StateOff
		c.Err = fmt.Errorf("zone %d: switch on: %w", z.Index, err)
		return c
	}

	z.State = StateOn
	z.ActivatedAt = now
	c.State = StateOn
	c.ActivatedAt = now
	return c
}

func (m *Monitor) turnOff(zone int, now time.Time, cause Cause) Change {
	z := &m.zones[zone-1]
	c := Change{
		Zone: z.Index, Name: z.Name,
		Previous: z.State, Cause: cause, At: now,
		ActivatedAt: z.ActivatedAt,
	}

	if z.State == StateOff {
		c.State = StateOff
		return c
	}

	if err := m.out.Set(z.Index, false); err != nil {
		c.State = StateOn
		c.Err = fmt.Errorf("zone %d: switch off: %w", z.Index, err)
		return c
	}

	z.State = StateOff
	z.ActivatedAt = time.Time{}
	c.State = StateOff
	return c
}
