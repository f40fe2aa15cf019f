// Package logic contains the pure button/LED state machines for the feedback kiosk.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Edge is a debounced transition of a channel's input.
type Edge string

const (
	EdgeNone    Edge = ""
	EdgeRising  Edge = "RISING"
	EdgeFalling Edge = "FALLING"
)

// Default timings for the kiosk.
const (
	DefaultDebounce    = 30 * time.Millisecond
	DefaultLEDOn       = 1000 * time.Millisecond
	DefaultIdleTimeout = 30 * time.Second
)

// Channel is one physical button/LED pair.
type Channel struct {
	ID        int
	Label     string
	InputPin  int
	OutputPin int
}

// ChannelState is the mutable runtime state of a single channel.
type ChannelState struct {
	// Last sampled raw input level (true = high)
	Raw bool
	// Current debounced level
	Stable bool
	// Time of the most recent raw level change
	RawChangedAt time.Time
	// Whether the LED output is driven high
	LEDOn bool
	// Time the LED was last turned on
	LEDOnSince time.Time
}

// PressEvent is emitted to the Notifier on each confirmed press.
type PressEvent struct {
	ChannelID int
	Label     string
	Timestamp time.Time
}

// Timings holds the fixed durations that govern the scan loop.
type Timings struct {
	Debounce    time.Duration
	LEDOn       time.Duration
	IdleTimeout time.Duration // <= 0 disables idle detection
}

// DefaultTimings returns the kiosk's standard timings.
func DefaultTimings() Timings {
	return Timings{
		Debounce:    DefaultDebounce,
		LEDOn:       DefaultLEDOn,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// ChannelSnapshot is a point-in-time view of a channel for status reporting.
type ChannelSnapshot struct {
	Channel
	Pressed bool
	LEDOn   bool
	Presses int
}
