package logic

import "time"

// Pulse holds a channel's LED on for a fixed duration after each press.
type Pulse struct {
	hold time.Duration
}

// NewPulse creates a pulse controller with the given hold duration.
func NewPulse(hold time.Duration) Pulse {
	return Pulse{hold: hold}
}

// Trigger turns the LED on. Re-triggering while on restarts the hold window.
func (p Pulse) Trigger(st *ChannelState, now time.Time) {
	st.LEDOn = true
	st.LEDOnSince = now
}

// Tick turns the LED off once the hold duration has elapsed.
// Returns true only on the call that switched it off.
func (p Pulse) Tick(st *ChannelState, now time.Time) bool {
	if !st.LEDOn {
		return false
	}
	if now.Sub(st.LEDOnSince) < p.hold {
		return false
	}
	st.LEDOn = false
	return true
}
