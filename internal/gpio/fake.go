package gpio

import (
	"context"
	"errors"
	"sync"
)

// Write is a recorded output write.
type Write struct {
	Pin  int
	High bool
}

// FakeBoard is a test double with settable input levels and recorded writes.
type FakeBoard struct {
	mu sync.Mutex

	levels  map[int]bool
	outputs map[int]bool
	scripts map[int][]bool

	// Writes contains every output write in order.
	Writes []Write

	// ReadErrors, if set for a pin, is returned by ReadLevel.
	ReadErrors map[int]error

	// WriteErrors, if set for a pin, is returned by WriteLevel.
	WriteErrors map[int]error

	// WakeMask is returned by WaitForLevel. If zero, WaitForLevel blocks
	// until the context is done.
	WakeMask uint64

	// WakeError, if set, is returned by WaitForLevel.
	WakeError error

	// WakeLevels, if set, are applied to the inputs when a wait returns,
	// simulating the button that woke the kiosk.
	WakeLevels map[int]bool

	// Waits counts WaitForLevel calls; Drains counts Drain calls.
	Waits  int
	Drains int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeBoard creates a FakeBoard with all inputs low.
func NewFakeBoard() *FakeBoard {
	return &FakeBoard{
		levels:      make(map[int]bool),
		outputs:     make(map[int]bool),
		scripts:     make(map[int][]bool),
		ReadErrors:  make(map[int]error),
		WriteErrors: make(map[int]error),
	}
}

// Set changes the level of an input pin and discards any script for it.
func (f *FakeBoard) Set(pin int, high bool) {
	f.mu.Lock()
	f.levels[pin] = high
	delete(f.scripts, pin)
	f.mu.Unlock()
}

// Script queues levels for an input pin. Each ReadLevel consumes one; once
// the queue is empty the pin holds its last scripted level.
func (f *FakeBoard) Script(pin int, levels ...bool) {
	f.mu.Lock()
	f.scripts[pin] = append(f.scripts[pin], levels...)
	f.mu.Unlock()
}

// SetReadError makes ReadLevel fail for pin; nil clears it.
func (f *FakeBoard) SetReadError(pin int, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.ReadErrors, pin)
	} else {
		f.ReadErrors[pin] = err
	}
	f.mu.Unlock()
}

// Output returns the last level written to an output pin.
func (f *FakeBoard) Output(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[pin]
}

// ReadLevel returns the level set with Set.
func (f *FakeBoard) ReadLevel(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ReadErrors[pin]; err != nil {
		return false, err
	}
	if queue := f.scripts[pin]; len(queue) > 0 {
		f.levels[pin] = queue[0]
		f.scripts[pin] = queue[1:]
	}
	return f.levels[pin], nil
}

// WriteLevel records the write.
func (f *FakeBoard) WriteLevel(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErrors[pin]; err != nil {
		return err
	}
	f.outputs[pin] = high
	f.Writes = append(f.Writes, Write{Pin: pin, High: high})
	return nil
}

// Drain counts the call.
func (f *FakeBoard) Drain() {
	f.mu.Lock()
	f.Drains++
	f.mu.Unlock()
}

// WaitForLevel returns the scripted wake mask restricted to pins.
func (f *FakeBoard) WaitForLevel(ctx context.Context, pins []int, high bool) (uint64, error) {
	f.mu.Lock()
	f.Waits++
	mask, wakeErr := f.WakeMask, f.WakeError
	f.mu.Unlock()

	if len(pins) == 0 {
		return 0, errors.New("no wake pins")
	}
	if wakeErr != nil {
		return 0, wakeErr
	}
	if mask == 0 {
		<-ctx.Done()
		return 0, ctx.Err()
	}

	var allowed uint64
	for _, p := range pins {
		allowed |= Bit(p)
	}

	f.mu.Lock()
	for pin, level := range f.WakeLevels {
		f.levels[pin] = level
	}
	f.mu.Unlock()

	return mask & allowed, nil
}

// Close marks the board as closed and drives outputs low.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for pin := range f.outputs {
		f.outputs[pin] = false
	}
	f.Closed = true
	return nil
}
