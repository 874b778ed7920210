package gpio

import "fmt"

// FakeWriter is a test double that records output writes.
type FakeWriter struct {
	// Outputs holds the current state of each zone, index 0 = zone 1.
	Outputs []bool

	// Writes records every successful Set call in order.
	Writes []Write

	// SetError, if set, is returned by every Set call.
	SetError error

	// FailZones makes Set fail for specific zones only.
	FailZones map[int]error

	// Closed tracks if Close was called.
	Closed bool
}

// Write is one recorded Set call.
type Write struct {
	Zone int
	On   bool
}

// NewFakeWriter creates a FakeWriter with n zones, all inactive.
func NewFakeWriter(n int) *FakeWriter {
	return &FakeWriter{Outputs: make([]bool, n)}
}

// Set records the write and updates Outputs.
func (f *FakeWriter) Set(zone int, on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	if err, ok := f.FailZones[zone]; ok {
		return err
	}
	if zone < 1 || zone > len(f.Outputs) {
		return fmt.Errorf("zone %d: no such output", zone)
	}
	f.Outputs[zone-1] = on
	f.Writes = append(f.Writes, Write{Zone: zone, On: on})
	return nil
}

// States returns a copy of Outputs.
func (f *FakeWriter) States() ([]bool, error) {
	out := make([]bool, len(f.Outputs))
	copy(out, f.Outputs)
	return out, nil
}

// Close marks the writer closed and drives every output inactive.
func (f *FakeWriter) Close() error {
	for i := range f.Outputs {
		f.Outputs[i] = false
	}
	f.Closed = true
	return nil
}

// Reset clears recorded writes and injected errors.
func (f *FakeWriter) Reset() {
	f.Writes = nil
	f.SetError = nil
	f.FailZones = nil
	f.Closed = false
}
