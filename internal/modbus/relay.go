// Package modbus drives zone relays on a Modbus/TCP relay board, one coil
// per zone.
package modbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Coil values for FC05 Write Single Coil.
const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

// Config addresses one relay board.
type Config struct {
	Endpoint string // host:port
	UnitID   uint8
	Timeout  time.Duration
}

// coilClient is the subset of modbus.Client used here.
type coilClient interface {
	WriteSingleCoil(address, value uint16) ([]byte, error)
	ReadCoils(address, quantity uint16) ([]byte, error)
}

// ErrReadOnly is returned by Set on a board opened with InspectRelayBoard.
var ErrReadOnly = errors.New("modbus: board opened read-only")

// RelayBoard is a zone output driver on Modbus coils.
// Requests are serialised; safe for concurrent use.
type RelayBoard struct {
	mu       sync.Mutex
	conn     io.Closer
	client   coilClient
	coils    []uint16
	readOnly bool
}

// NewRelayBoard connects to the board and switches every zone coil off.
// coils[i] is the coil address of zone i+1.
func NewRelayBoard(cfg Config, coils []int) (*RelayBoard, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}
	addrs, err := coilAddresses(coils)
	if err != nil {
		return nil, err
	}

	h, err := dial(cfg)
	if err != nil {
		return nil, err
	}

	b := newRelayBoard(h, modbus.NewClient(h), addrs)
	for i := range addrs {
		if err := b.Set(i+1, false); err != nil {
			h.Close()
			return nil, err
		}
	}
	return b, nil
}

// InspectRelayBoard connects to the board for reading coil states only.
// Nothing is written on open, Set or Close.
func InspectRelayBoard(cfg Config, coils []int) (*RelayBoard, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus: endpoint required")
	}
	addrs, err := coilAddresses(coils)
	if err != nil {
		return nil, err
	}
	h, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	b := newRelayBoard(h, modbus.NewClient(h), addrs)
	b.readOnly = true
	return b, nil
}

func dial(cfg Config) (*modbus.TCPClientHandler, error) {
	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus: connect %s: %w", cfg.Endpoint, err)
	}
	return h, nil
}

func newRelayBoard(conn io.Closer, client coilClient, coils []uint16) *RelayBoard {
	return &RelayBoard{conn: conn, client: client, coils: coils}
}

func coilAddresses(coils []int) ([]uint16, error) {
	if len(coils) == 0 {
		return nil, errors.New("modbus: at least one coil required")
	}
	out := make([]uint16, len(coils))
	for i, c := range coils {
		if c < 0 || c > 0xFFFF {
			return nil, fmt.Errorf("modbus: zone %d coil %d out of range", i+1, c)
		}
		out[i] = uint16(c)
	}
	return out, nil
}

// Set switches the zone's coil.
func (b *RelayBoard) Set(zone int, on bool) error {
	if zone < 1 || zone > len(b.coils) {
		return fmt.Errorf("zone %d: no such output", zone)
	}
	if b.readOnly {
		return ErrReadOnly
	}
	v := coilOff
	if on {
		v = coilOn
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.client.WriteSingleCoil(b.coils[zone-1], v); err != nil {
		return fmt.Errorf("set zone %d coil %d: %w", zone, b.coils[zone-1], err)
	}
	return nil
}

// States reads back every zone coil.
func (b *RelayBoard) States() ([]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]bool, len(b.coils))
	for i, addr := range b.coils {
		res, err := b.client.ReadCoils(addr, 1)
		if err != nil {
			return nil, fmt.Errorf("read zone %d coil %d: %w", i+1, addr, err)
		}
		if len(res) == 0 {
			return nil, fmt.Errorf("read zone %d coil %d: empty response", i+1, addr)
		}
		states[i] = res[0]&0x01 != 0
	}
	return states, nil
}

// Close switches every coil off and closes the connection. A read-only
// board only closes the connection.
func (b *RelayBoard) Close() error {
	var errs []error
	if !b.readOnly {
		for i := range b.coils {
			if err := b.Set(i+1, false); err != nil {
				errs = append(errs, err)
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		b.conn = nil
	}
	return errors.Join(errs...)
}
