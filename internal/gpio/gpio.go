// Package gpio drives zone outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer switches zone outputs. Zones are 1-based and map, in order,
// onto the pins the writer was created with.
type Writer interface {
	// Set drives the zone's output active (on) or inactive.
	Set(zone int, on bool) error

	// States returns the current logical state of every zone output.
	States() ([]bool, error)

	// Close drives every output inactive and releases GPIO resources.
	Close() error
}

// Reader reports zone output states without driving them.
type Reader interface {
	// States returns the current logical state of every zone output.
	States() ([]bool, error)

	// Close releases the lines without changing their levels.
	Close() error
}

// DefaultChip is the GPIO character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// DefaultPins are the BCM line offsets of the seven relay channels.
var DefaultPins = []int{5, 4, 14, 12, 13, 15, 16}
