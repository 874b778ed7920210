//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives zone relays through the Linux GPIO character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealWriter requests every pin as an output, initially inactive.
// activeLow suits relay boards that energise on a low level.
func NewRealWriter(chipName string, pins []int, activeLow bool) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("sprinkler"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &RealWriter{chip: chip}
	for i, pin := range pins {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request zone %d pin %d: %w", i+1, pin, err)
		}
		w.lines = append(w.lines, line)
	}

	return w, nil
}

// Set drives the zone's line active or inactive.
func (w *RealWriter) Set(zone int, on bool) error {
	if zone < 1 || zone > len(w.lines) {
		return fmt.Errorf("zone %d: no such output", zone)
	}
	v := 0
	if on {
		v = 1
	}
	if err := w.lines[zone-1].SetValue(v); err != nil {
		return fmt.Errorf("set zone %d: %w", zone, err)
	}
	return nil
}

// States reads back the logical value of every line.
func (w *RealWriter) States() ([]bool, error) {
	states := make([]bool, len(w.lines))
	for i, l := range w.lines {
		v, err := l.Value()
		if err != nil {
			return nil, fmt.Errorf("read zone %d: %w", i+1, err)
		}
		states[i] = v == 1
	}
	return states, nil
}

// Close drives every line inactive, then reconfigures it to input with
// pull-down (matching Pi boot defaults) before releasing it. Relays must
// not be left energised while the daemon is down.
func (w *RealWriter) Close() error {
	var errs []error

	for i, l := range w.lines {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("deactivate zone %d: %w", i+1, err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure zone %d: %w", i+1, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close zone %d: %w", i+1, err))
		}
	}
	w.lines = nil

	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealReader inspects zone lines without taking ownership of their levels.
type RealReader struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealReader requests every pin as-is, leaving direction and value
// untouched. It fails with a busy error while another process, such as a
// running daemon, holds the lines.
func NewRealReader(chipName string, pins []int, activeLow bool) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("sprinkler-inspect"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	r := &RealReader{chip: chip}
	for i, pin := range pins {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsIs}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("request zone %d pin %d: %w", i+1, pin, err)
		}
		r.lines = append(r.lines, line)
	}
	return r, nil
}

// States reads the logical value of every line.
func (r *RealReader) States() ([]bool, error) {
	states := make([]bool, len(r.lines))
	for i, l := range r.lines {
		v, err := l.Value()
		if err != nil {
			return nil, fmt.Errorf("read zone %d: %w", i+1, err)
		}
		states[i] = v == 1
	}
	return states, nil
}

// Close releases every line as-is.
func (r *RealReader) Close() error {
	var errs []error
	for i, l := range r.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close zone %d: %w", i+1, err))
		}
	}
	r.lines = nil
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
