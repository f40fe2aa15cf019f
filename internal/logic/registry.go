package logic

import (
	"errors"
	"fmt"
)

// MaxPin is the highest pin number a channel may use. Wake sources are
// reported as a 64-bit mask.
const MaxPin = 63

// ErrNoChannels is returned when a registry is built from an empty list.
var ErrNoChannels = errors.New("no channels configured")

// Registry is the fixed, ordered set of channels.
type Registry struct {
	channels []Channel
}

// DefaultChannels returns the kiosk's four button/LED pairs.
func DefaultChannels() []Channel {
	return []Channel{
		{ID: 0, Label: "HAPPY", InputPin: 4, OutputPin: 26},
		{ID: 1, Label: "SATISFIED", InputPin: 33, OutputPin: 32},
		{ID: 2, Label: "UNSATISFIED", InputPin: 34, OutputPin: 14},
		{ID: 3, Label: "ANGRY", InputPin: 12, OutputPin: 25},
	}
}

// NewRegistry validates the channels and returns a registry holding a copy.
func NewRegistry(channels []Channel) (*Registry, error) {
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	labels := make(map[string]bool)
	inputs := make(map[int]bool)
	outputs := make(map[int]bool)

	for i, ch := range channels {
		if ch.ID != i {
			return nil, fmt.Errorf("channel %d: id %d does not match its position", i, ch.ID)
		}
		if ch.Label == "" {
			return nil, fmt.Errorf("channel %d: empty label", i)
		}
		if labels[ch.Label] {
			return nil, fmt.Errorf("channel %d: duplicate label %q", i, ch.Label)
		}
		labels[ch.Label] = true

		for _, pin := range []int{ch.InputPin, ch.OutputPin} {
			if pin < 0 || pin > MaxPin {
				return nil, fmt.Errorf("channel %s: pin %d out of range 0..%d", ch.Label, pin, MaxPin)
			}
		}
		if inputs[ch.InputPin] || outputs[ch.InputPin] {
			return nil, fmt.Errorf("channel %s: input pin %d already in use", ch.Label, ch.InputPin)
		}
		inputs[ch.InputPin] = true
		if outputs[ch.OutputPin] || inputs[ch.OutputPin] {
			return nil, fmt.Errorf("channel %s: output pin %d already in use", ch.Label, ch.OutputPin)
		}
		outputs[ch.OutputPin] = true
	}

	r := &Registry{channels: make([]Channel, len(channels))}
	copy(r.channels, channels)
	return r, nil
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	return len(r.channels)
}

// Channels returns a copy of the channels in index order.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.channels))
	copy(out, r.channels)
	return out
}

// ByID returns the channel with the given id.
func (r *Registry) ByID(id int) (Channel, bool) {
	if id < 0 || id >= len(r.channels) {
		return Channel{}, false
	}
	return r.channels[id], true
}

// InputPins returns the input pins in index order.
func (r *Registry) InputPins() []int {
	pins := make([]int, len(r.channels))
	for i, ch := range r.channels {
		pins[i] = ch.InputPin
	}
	return pins
}
