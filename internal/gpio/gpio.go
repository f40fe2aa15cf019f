// Package gpio provides button input and LED output with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "context"

// Board reads button levels, drives LEDs and waits for wake edges.
type Board interface {
	// ReadLevel returns the current level of an input pin (true = high).
	ReadLevel(pin int) (bool, error)

	// WriteLevel drives an output pin.
	WriteLevel(pin int, high bool) error

	// Drain discards edge events queued while the kiosk was awake.
	Drain()

	// WaitForLevel blocks until one of pins makes a transition to the given
	// level, or ctx is done. It returns a mask with bit n set for every pin n
	// among pins that is at the level when the wait ends.
	WaitForLevel(ctx context.Context, pins []int, high bool) (uint64, error)

	// Close drives outputs low and releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// eventQueueSize bounds the number of edge events held between waits.
const eventQueueSize = 64

// Bit returns the wake-mask bit for a pin, or 0 if the pin cannot be
// represented.
func Bit(pin int) uint64 {
	if pin < 0 || pin > 63 {
		return 0
	}
	return 1 << uint(pin)
}
