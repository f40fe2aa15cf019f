//go:build linux

package gpio

import (
	"context"
	"fmt"
	"sort"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives actual hardware using the Linux GPIO character device.
type RealBoard struct {
	chip    *gpiocdev.Chip
	inputs  map[int]*gpiocdev.Line
	outputs map[int]*gpiocdev.Line
	events  chan gpiocdev.LineEvent
}

// NewRealBoard requests the given input and output lines on chipName.
func NewRealBoard(chipName string, inputPins, outputPins []int) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	b := &RealBoard{
		chip:    chip,
		inputs:  make(map[int]*gpiocdev.Line),
		outputs: make(map[int]*gpiocdev.Line),
		events:  make(chan gpiocdev.LineEvent, eventQueueSize),
	}

	// Buttons pull the line high when pressed. Edge events are only consumed
	// while waiting for a wake; the scan loop polls levels.
	for _, pin := range inputPins {
		line, err := chip.RequestLine(pin,
			gpiocdev.AsInput,
			gpiocdev.WithPullDown,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(b.handleEvent))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request input pin %d: %w", pin, err)
		}
		b.inputs[pin] = line
	}

	for _, pin := range outputPins {
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request output pin %d: %w", pin, err)
		}
		b.outputs[pin] = line
	}

	return b, nil
}

// handleEvent runs on the gpiocdev watcher goroutine and must not block.
func (b *RealBoard) handleEvent(evt gpiocdev.LineEvent) {
	select {
	case b.events <- evt:
	default:
	}
}

// ReadLevel returns the level of an input pin.
func (b *RealBoard) ReadLevel(pin int) (bool, error) {
	line, ok := b.inputs[pin]
	if !ok {
		return false, fmt.Errorf("pin %d is not an input", pin)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v == 1, nil
}

// WriteLevel drives an output pin.
func (b *RealBoard) WriteLevel(pin int, high bool) error {
	line, ok := b.outputs[pin]
	if !ok {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Drain discards queued edge events.
func (b *RealBoard) Drain() {
	for {
		select {
		case <-b.events:
		default:
			return
		}
	}
}

// WaitForLevel blocks until one of pins has an edge to the given level.
func (b *RealBoard) WaitForLevel(ctx context.Context, pins []int, high bool) (uint64, error) {
	watched := make(map[int]bool, len(pins))
	for _, p := range pins {
		if _, ok := b.inputs[p]; !ok {
			return 0, fmt.Errorf("wake pin %d is not an input", p)
		}
		watched[p] = true
	}

	want := gpiocdev.LineEventFallingEdge
	if high {
		want = gpiocdev.LineEventRisingEdge
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case evt := <-b.events:
			if !watched[evt.Offset] || evt.Type != want {
				continue
			}
			return Bit(evt.Offset) | b.assertedMask(pins, high), nil
		}
	}
}

// assertedMask checks each pin individually so simultaneous presses are all
// reported.
func (b *RealBoard) assertedMask(pins []int, high bool) uint64 {
	var mask uint64
	for _, p := range pins {
		level, err := b.ReadLevel(p)
		if err == nil && level == high {
			mask |= Bit(p)
		}
	}
	return mask
}

// Close drives LEDs low and releases all lines.
// Inputs are reconfigured to input with pull-down before release so the
// buttons are left in a known state.
func (b *RealBoard) Close() error {
	var errs []error

	for _, pin := range sortedPins(b.outputs) {
		line := b.outputs[pin]
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear output pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output pin %d: %w", pin, err))
		}
	}
	for _, pin := range sortedPins(b.inputs) {
		line := b.inputs[pin]
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure input pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input pin %d: %w", pin, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func sortedPins(lines map[int]*gpiocdev.Line) []int {
	pins := make([]int, 0, len(lines))
	for p := range lines {
		pins = append(pins, p)
	}
	sort.Ints(pins)
	return pins
}
