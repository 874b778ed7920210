package zone

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/sprinkler-controller/internal/command"
	"github.com/sweeney/sprinkler-controller/internal/gpio"
)

const testCeiling = 7200000 * time.Millisecond

var t0 = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

func testSpecs(n int) []Spec {
	names := []string{"Front Lawn", "Back Lawn", "Garden", "Side Yard", "Flower Bed", "Drip System", "Extra Zone"}
	specs := make([]Spec, n)
	for i := range specs {
		specs[i] = Spec{Name: names[i%len(names)]}
	}
	return specs
}

func newTestMonitor(t *testing.T, n int) (*Monitor, *gpio.FakeWriter) {
	t.Helper()
	out := gpio.NewFakeWriter(n)
	m, err := NewMonitor(testSpecs(n), testCeiling, out)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	out.Reset()
	return m, out
}

func TestNewMonitorInitialisesAllOff(t *testing.T) {
	out := gpio.NewFakeWriter(7)
	out.Outputs[2] = true // left on by a previous run

	m, err := NewMonitor(testSpecs(7), testCeiling, out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(out.Writes) != 7 {
		t.Errorf("expected 7 initial writes, got %d", len(out.Writes))
	}
	for i, on := range out.Outputs {
		if on {
			t.Errorf("zone %d: output still active after init", i+1)
		}
	}
	for _, z := range m.Zones() {
		if z.State != StateOff {
			t.Errorf("zone %d: state %s, want OFF", z.Index, z.State)
		}
		if !z.ActivatedAt.IsZero() {
			t.Errorf("zone %d: ActivatedAt set while OFF", z.Index)
		}
	}
}

func TestNewMonitorRejectsBadInput(t *testing.T) {
	out := gpio.NewFakeWriter(2)

	if _, err := NewMonitor(testSpecs(2), 0, out); !errors.Is(err, ErrNoCeiling) {
		t.Errorf("zero ceiling: got %v, want ErrNoCeiling", err)
	}
	if _, err := NewMonitor(testSpecs(2), -time.Second, out); !errors.Is(err, ErrNoCeiling) {
		t.Errorf("negative ceiling: got %v, want ErrNoCeiling", err)
	}
	if _, err := NewMonitor(nil, time.Hour, out); err == nil {
		t.Error("expected error for no zones")
	}
	long := []Spec{{Name: strings.Repeat("x", MaxNameLen+1)}}
	if _, err := NewMonitor(long, time.Hour, gpio.NewFakeWriter(1)); err == nil {
		t.Error("expected error for over-long name")
	}

	failing := gpio.NewFakeWriter(2)
	failing.SetError = errors.New("chip gone")
	if _, err := NewMonitor(testSpecs(2), time.Hour, failing); err == nil {
		t.Error("expected error when outputs cannot be initialised")
	}
}

func TestApplyActivate(t *testing.T) {
	m, out := newTestMonitor(t, 7)

	c, ok := m.Apply(3, command.ActionActivate, t0)
	if !ok {
		t.Fatal("expected change")
	}
	if c.Previous != StateOff || c.State != StateOn {
		t.Errorf("transition: got %s→%s, want OFF→ON", c.Previous, c.State)
	}
	if c.Cause != CauseCommand {
		t.Errorf("cause: got %s", c.Cause)
	}
	if !out.Outputs[2] {
		t.Error("zone 3 output should be active")
	}
	z := m.Zones()[2]
	if z.State != StateOn || !z.ActivatedAt.Equal(t0) {
		t.Errorf("zone 3: got %+v", z)
	}
}

func TestApplyDeactivate(t *testing.T) {
	m, out := newTestMonitor(t, 7)
	m.Apply(1, command.ActionActivate, t0)

	c, ok := m.Apply(1, command.ActionDeactivate, t0.Add(10*time.Minute))
	if !ok {
		t.Fatal("expected change")
	}
	if !c.Ended() {
		t.Error("expected run to end")
	}
	if c.RunTime() != 10*time.Minute {
		t.Errorf("RunTime: got %v, want 10m", c.RunTime())
	}
	if out.Outputs[0] {
		t.Error("zone 1 output should be inactive")
	}
	if z := m.Zones()[0]; z.State != StateOff || !z.ActivatedAt.IsZero() {
		t.Errorf("zone 1: got %+v", z)
	}
}

func TestApplyRedundantActivateIsIdempotent(t *testing.T) {
	m, out := newTestMonitor(t, 2)
	m.Apply(1, command.ActionActivate, t0)
	writes := len(out.Writes)

	c, ok := m.Apply(1, command.ActionActivate, t0.Add(time.Hour))
	if !ok {
		t.Fatal("redundant activate must still produce a confirmation")
	}
	if c.State != StateOn || c.Previous != StateOn {
		t.Errorf("got %s→%s, want ON→ON", c.Previous, c.State)
	}
	if len(out.Writes) != writes {
		t.Error("redundant activate must not touch the output")
	}
	if z := m.Zones()[0]; !z.ActivatedAt.Equal(t0) {
		t.Errorf("redundant activate moved ActivatedAt to %v", z.ActivatedAt)
	}
}

func TestApplyRedundantDeactivateIsIdempotent(t *testing.T) {
	m, out := newTestMonitor(t, 2)

	c, ok := m.Apply(2, command.ActionDeactivate, t0)
	if !ok {
		t.Fatal("redundant deactivate must still produce a confirmation")
	}
	if c.State != StateOff || c.Ended() {
		t.Errorf("unexpected change: %+v", c)
	}
	if len(out.Writes) != 0 {
		t.Error("redundant deactivate must not touch the output")
	}
}

func TestApplyIgnored(t *testing.T) {
	m, out := newTestMonitor(t, 7)

	cases := []struct {
		zone   int
		action command.Action
	}{
		{0, command.ActionActivate},
		{8, command.ActionActivate},
		{-3, command.ActionDeactivate},
		{1, command.ActionIgnore},
	}
	for _, tc := range cases {
		if _, ok := m.Apply(tc.zone, tc.action, t0); ok {
			t.Errorf("Apply(%d, %s) should be ignored", tc.zone, tc.action)
		}
	}
	if len(out.Writes) != 0 {
		t.Errorf("ignored commands wrote outputs: %+v", out.Writes)
	}
}

func TestApplyActivateFailureLeavesZoneOff(t *testing.T) {
	m, out := newTestMonitor(t, 2)
	out.FailZones = map[int]error{1: errors.New("relay fault")}

	c, ok := m.Apply(1, command.ActionActivate, t0)
	if !ok {
		t.Fatal("expected change")
	}
	if c.Err == nil {
		t.Error("expected error")
	}
	if c.State != StateOff {
		t.Errorf("state after failed activate: got %s, want OFF", c.State)
	}
	if z := m.Zones()[0]; z.State != StateOff || !z.ActivatedAt.IsZero() {
		t.Errorf("zone 1: got %+v", z)
	}
}

func TestSweepForcesOffAfterCeiling(t *testing.T) {
	m, out := newTestMonitor(t, 7)
	m.Apply(2, command.ActionActivate, t0)

	if changes := m.Sweep(t0.Add(testCeiling - time.Millisecond)); len(changes) != 0 {
		t.Fatalf("sweep before ceiling forced %d zones off", len(changes))
	}

	changes := m.Sweep(t0.Add(7200001 * time.Millisecond))
	if len(changes) != 1 {
		t.Fatalf("expected 1 forced change, got %d", len(changes))
	}
	c := changes[0]
	if c.Zone != 2 || c.State != StateOff || c.Cause != CauseSafety {
		t.Errorf("unexpected change: %+v", c)
	}
	if !c.Ended() || !c.ActivatedAt.Equal(t0) {
		t.Errorf("change should end the run started at t0: %+v", c)
	}
	if out.Outputs[1] {
		t.Error("zone 2 output should be inactive")
	}
}

func TestSweepAtExactCeiling(t *testing.T) {
	m, _ := newTestMonitor(t, 1)
	m.Apply(1, command.ActionActivate, t0)

	changes := m.Sweep(t0.Add(testCeiling))
	if len(changes) != 1 {
		t.Fatalf("zone must be off at activatedAt+ceiling, got %d changes", len(changes))
	}
}

func TestSweepRetriesFailedShutoff(t *testing.T) {
	m, out := newTestMonitor(t, 1)
	m.Apply(1, command.ActionActivate, t0)
	out.FailZones = map[int]error{1: errors.New("relay stuck")}

	changes := m.Sweep(t0.Add(testCeiling))
	if len(changes) != 1 || changes[0].Err == nil {
		t.Fatalf("expected failed forced change, got %+v", changes)
	}
	if changes[0].State != StateOn {
		t.Errorf("failed shutoff must report ON, got %s", changes[0].State)
	}

	out.FailZones = nil
	changes = m.Sweep(t0.Add(testCeiling + time.Second))
	if len(changes) != 1 || changes[0].State != StateOff || changes[0].Err != nil {
		t.Fatalf("retry should succeed, got %+v", changes)
	}
	if out.Outputs[0] {
		t.Error("output should be inactive after retry")
	}
}

func TestSafetyInvariantUnderCommandSpam(t *testing.T) {
	m, _ := newTestMonitor(t, 3)
	sweepEvery := time.Second

	var onSince time.Time
	for now := t0; now.Before(t0.Add(5 * time.Hour)); now = now.Add(sweepEvery) {
		// A client repeatedly re-sends ON for zone 1.
		if now.Sub(t0)%(10*time.Minute) == 0 {
			m.Apply(1, command.ActionActivate, now)
		}
		m.Sweep(now)

		z := m.Zones()[0]
		if z.State == StateOn {
			if onSince.IsZero() {
				onSince = z.ActivatedAt
			}
			if now.Sub(onSince) >= testCeiling {
				t.Fatalf("zone 1 continuously on for %v at %v", now.Sub(onSince), now)
			}
		} else {
			onSince = time.Time{}
		}
	}
}

func TestAllOff(t *testing.T) {
	m, out := newTestMonitor(t, 3)
	m.Apply(1, command.ActionActivate, t0)
	m.Apply(3, command.ActionActivate, t0)

	changes := m.AllOff(t0.Add(time.Minute), CauseShutdown)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	ended := 0
	for _, c := range changes {
		if c.State != StateOff {
			t.Errorf("zone %d: state %s, want OFF", c.Zone, c.State)
		}
		if c.Cause != CauseShutdown {
			t.Errorf("zone %d: cause %s", c.Zone, c.Cause)
		}
		if c.Ended() {
			ended++
		}
	}
	if ended != 2 {
		t.Errorf("expected 2 ended runs, got %d", ended)
	}
	for i, on := range out.Outputs {
		if on {
			t.Errorf("zone %d still active", i+1)
		}
	}
}

func TestDue(t *testing.T) {
	m, _ := newTestMonitor(t, 2)
	if m.Due(t0) {
		t.Error("no zone running, nothing due")
	}
	m.Apply(2, command.ActionActivate, t0)

	if m.Due(t0.Add(testCeiling - time.Millisecond)) {
		t.Error("due before the ceiling")
	}
	if !m.Due(t0.Add(testCeiling)) {
		t.Error("not due at the ceiling")
	}
}

func TestNextDeadline(t *testing.T) {
	m, out := newTestMonitor(t, 3)

	if _, ok := m.NextDeadline(t0); ok {
		t.Fatal("no deadline expected with every zone off")
	}

	m.Apply(1, command.ActionActivate, t0)
	m.Apply(3, command.ActionActivate, t0.Add(-30*time.Minute))

	at, ok := m.NextDeadline(t0)
	if !ok || !at.Equal(t0.Add(testCeiling-30*time.Minute)) {
		t.Errorf("NextDeadline: got %v %v, want zone 3's deadline", at, ok)
	}

	// Zone 3 fails to switch off; only zone 1's deadline is still ahead.
	out.FailZones = map[int]error{3: errors.New("relay stuck")}
	past := t0.Add(testCeiling - 30*time.Minute)
	m.Sweep(past)
	at, ok = m.NextDeadline(past)
	if !ok || !at.Equal(t0.Add(testCeiling)) {
		t.Errorf("NextDeadline after failed shutoff: got %v %v, want zone 1's deadline", at, ok)
	}
}

func TestSweepAtNextDeadlineEndsRunAtCeiling(t *testing.T) {
	ceiling := 10 * time.Minute
	out := gpio.NewFakeWriter(1)
	m, err := NewMonitor(testSpecs(1), ceiling, out)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}

	activated := t0.Add(time.Millisecond)
	m.Apply(1, command.ActionActivate, activated)

	at, ok := m.NextDeadline(activated)
	if !ok || !at.Equal(activated.Add(ceiling)) {
		t.Fatalf("NextDeadline: got %v %v", at, ok)
	}

	changes := m.Sweep(at)
	if len(changes) != 1 || changes[0].State != StateOff {
		t.Fatalf("sweep at deadline: %+v", changes)
	}
	if run := changes[0].RunTime(); run != ceiling {
		t.Errorf("zone ran %v, want exactly %v", run, ceiling)
	}
	if out.Outputs[0] {
		t.Error("output still active")
	}
}
