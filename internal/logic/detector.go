package logic

import "time"

// Debouncer turns raw input samples into stable transitions.
type Debouncer struct {
	window time.Duration
}

// NewDebouncer creates a debouncer with the given settle window.
func NewDebouncer(window time.Duration) Debouncer {
	return Debouncer{window: window}
}

// Window returns the settle window.
func (d Debouncer) Window() time.Duration {
	return d.window
}

// Poll feeds one raw sample into the channel state and returns the edge that
// was committed by this sample, or EdgeNone.
//
// Every raw change restarts the window, so input that keeps chattering never
// commits. At most one transition is committed per call.
func (d Debouncer) Poll(st *ChannelState, raw bool, now time.Time) Edge {
	if raw != st.Raw {
		st.Raw = raw
		st.RawChangedAt = now
	}

	if raw == st.Stable {
		return EdgeNone
	}

	if now.Sub(st.RawChangedAt) < d.window {
		return EdgeNone
	}

	st.Stable = raw
	if raw {
		return EdgeRising
	}
	return EdgeFalling
}
