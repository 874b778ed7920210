package modbus

import (
	"errors"
	"testing"
)

type fakeCoils struct {
	coils    map[uint16]bool
	writes   []uint16
	writeErr error
	readErr  error
}

func newFakeCoils() *fakeCoils {
	return &fakeCoils{coils: make(map[uint16]bool)}
}

func (f *fakeCoils) WriteSingleCoil(address, value uint16) ([]byte, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if value != coilOn && value != coilOff {
		return nil, errors.New("illegal coil value")
	}
	f.coils[address] = value == coilOn
	f.writes = append(f.writes, address)
	return []byte{byte(address >> 8), byte(address), byte(value >> 8), byte(value)}, nil
}

func (f *fakeCoils) ReadCoils(address, quantity uint16) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.coils[address] {
		return []byte{0x01}, nil
	}
	return []byte{0x00}, nil
}

type fakeConn struct{ closed bool }

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestRelayBoardSet(t *testing.T) {
	fc := newFakeCoils()
	b := newRelayBoard(&fakeConn{}, fc, []uint16{100, 101, 107})

	if err := b.Set(3, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !fc.coils[107] {
		t.Error("zone 3 should drive coil 107")
	}

	if err := b.Set(3, false); err != nil {
		t.Fatal(err)
	}
	if fc.coils[107] {
		t.Error("coil 107 should be off")
	}
}

func TestRelayBoardSetOutOfRange(t *testing.T) {
	b := newRelayBoard(&fakeConn{}, newFakeCoils(), []uint16{0, 1})
	for _, z := range []int{0, 3, -1} {
		if err := b.Set(z, true); err == nil {
			t.Errorf("zone %d: expected error", z)
		}
	}
}

func TestRelayBoardSetError(t *testing.T) {
	fc := newFakeCoils()
	fc.writeErr = errors.New("gateway timeout")
	b := newRelayBoard(&fakeConn{}, fc, []uint16{0})

	err := b.Set(1, true)
	if !errors.Is(err, fc.writeErr) {
		t.Errorf("got %v, want wrapped write error", err)
	}
}

func TestRelayBoardStates(t *testing.T) {
	fc := newFakeCoils()
	b := newRelayBoard(&fakeConn{}, fc, []uint16{10, 11, 12})
	b.Set(2, true)

	states, err := b.States()
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{false, true, false}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("zone %d: got %v, want %v", i+1, states[i], want[i])
		}
	}

	fc.readErr = errors.New("read failed")
	if _, err := b.States(); err == nil {
		t.Error("expected read error")
	}
}

func TestRelayBoardCloseSwitchesOff(t *testing.T) {
	fc := newFakeCoils()
	conn := &fakeConn{}
	b := newRelayBoard(conn, fc, []uint16{0, 1})
	b.Set(1, true)
	b.Set(2, true)

	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.coils[0] || fc.coils[1] {
		t.Error("Close must switch every coil off")
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
}

func TestCoilAddresses(t *testing.T) {
	got, err := coilAddresses([]int{0, 7, 65535})
	if err != nil {
		t.Fatal(err)
	}
	if got[2] != 65535 {
		t.Errorf("got %v", got)
	}

	if _, err := coilAddresses(nil); err == nil {
		t.Error("expected error for no coils")
	}
	if _, err := coilAddresses([]int{65536}); err == nil {
		t.Error("expected error for out-of-range coil")
	}
	if _, err := coilAddresses([]int{-1}); err == nil {
		t.Error("expected error for negative coil")
	}
}

func TestNewRelayBoardRequiresEndpoint(t *testing.T) {
	if _, err := NewRelayBoard(Config{}, []int{0}); err == nil {
		t.Error("expected error")
	}
}

func TestReadOnlyBoardNeverWrites(t *testing.T) {
	fc := newFakeCoils()
	fc.coils[101] = true
	conn := &fakeConn{}
	b := newRelayBoard(conn, fc, []uint16{100, 101})
	b.readOnly = true

	states, err := b.States()
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if states[0] || !states[1] {
		t.Errorf("states: got %v, want [false true]", states)
	}

	if err := b.Set(1, true); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Set: got %v, want ErrReadOnly", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(fc.writes) != 0 {
		t.Errorf("read-only board wrote coils %v", fc.writes)
	}
	if !fc.coils[101] {
		t.Error("zone 2 coil must stay on after Close")
	}
	if !conn.closed {
		t.Error("connection not closed")
	}
}
