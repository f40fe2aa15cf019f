package logic

import (
	"fmt"
	"time"
)

// LevelReader samples a digital input.
type LevelReader interface {
	ReadLevel(pin int) (bool, error)
}

// LevelWriter drives a digital output.
type LevelWriter interface {
	WriteLevel(pin int, high bool) error
}

// IO is the pin access the scanner needs.
type IO interface {
	LevelReader
	LevelWriter
}

// Notifier receives confirmed presses. Implementations must not block for
// long and must absorb their own failures.
type Notifier interface {
	Notify(event PressEvent)
}

// Report summarises one scan cycle.
type Report struct {
	// Presses confirmed this cycle, in registry order
	Presses []PressEvent
	// IDs of channels whose button was released this cycle
	Releases []int
	// IDs of channels whose LED was switched off this cycle
	LEDsOff []int
	// Pin read/write failures; none of them stop the cycle
	Errors []error
	// Idle is set once per idle period when the kiosk should sleep
	Idle bool
}

// Scanner owns the registry and every channel's runtime state and runs one
// scan cycle per call. It is not safe for concurrent use: it is driven by a
// single polling loop.
type Scanner struct {
	reg      *Registry
	io       IO
	notifier Notifier
	timings  Timings
	debounce Debouncer
	pulse    Pulse
	activity *ActivityTracker
	states   []ChannelState
	presses  []int
}

// NewScanner seeds each channel's state from the current hardware levels, so
// a button already held at startup does not produce a press, and drives every
// LED low.
func NewScanner(reg *Registry, io IO, notifier Notifier, timings Timings, now time.Time) (*Scanner, error) {
	s := &Scanner{
		reg:      reg,
		io:       io,
		notifier: notifier,
		timings:  timings,
		debounce: NewDebouncer(timings.Debounce),
		pulse:    NewPulse(timings.LEDOn),
		activity: NewActivityTracker(now),
		states:   make([]ChannelState, reg.Len()),
		presses:  make([]int, reg.Len()),
	}

	for i, ch := range reg.channels {
		level, err := io.ReadLevel(ch.InputPin)
		if err != nil {
			return nil, fmt.Errorf("read %s input pin %d: %w", ch.Label, ch.InputPin, err)
		}
		s.states[i] = ChannelState{
			Raw:          level,
			Stable:       level,
			RawChangedAt: now,
		}
		if err := io.WriteLevel(ch.OutputPin, false); err != nil {
			return nil, fmt.Errorf("write %s output pin %d: %w", ch.Label, ch.OutputPin, err)
		}
	}

	return s, nil
}

// Scan runs one cycle over all channels in registry order, then checks for
// idleness. It never blocks.
func (s *Scanner) Scan(now time.Time) Report {
	var rep Report

	for i, ch := range s.reg.channels {
		st := &s.states[i]

		raw, err := s.io.ReadLevel(ch.InputPin)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("read %s input pin %d: %w", ch.Label, ch.InputPin, err))
		} else {
			switch s.debounce.Poll(st, raw, now) {
			case EdgeRising:
				s.press(i, now, &rep)
			case EdgeFalling:
				rep.Releases = append(rep.Releases, ch.ID)
			}
		}

		if s.pulse.Tick(st, now) {
			rep.LEDsOff = append(rep.LEDsOff, ch.ID)
			s.writeLED(ch, false, &rep)
		}
	}

	rep.Idle = s.activity.CheckIdle(now, s.timings.IdleTimeout)
	return rep
}

// Wake treats every channel whose input pin is among pins as pressed. It is
// used right after waking from low power, when the button that woke the
// kiosk may already be stable high.
func (s *Scanner) Wake(pins []int, now time.Time) Report {
	var rep Report

	woke := make(map[int]bool, len(pins))
	for _, p := range pins {
		woke[p] = true
	}

	for i, ch := range s.reg.channels {
		if woke[ch.InputPin] {
			s.press(i, now, &rep)
		}
	}
	return rep
}

func (s *Scanner) press(i int, now time.Time, rep *Report) {
	ch := s.reg.channels[i]

	s.pulse.Trigger(&s.states[i], now)
	s.writeLED(ch, true, rep)

	event := PressEvent{
		ChannelID: ch.ID,
		Label:     ch.Label,
		Timestamp: now,
	}
	s.notifier.Notify(event)
	s.activity.Record(now)
	s.presses[i]++

	rep.Presses = append(rep.Presses, event)
}

func (s *Scanner) writeLED(ch Channel, on bool, rep *Report) {
	if err := s.io.WriteLevel(ch.OutputPin, on); err != nil {
		rep.Errors = append(rep.Errors, fmt.Errorf("write %s output pin %d: %w", ch.Label, ch.OutputPin, err))
	}
}

// Quiesce turns every LED off, e.g. before entering low power.
func (s *Scanner) Quiesce() []error {
	var rep Report
	for i, ch := range s.reg.channels {
		s.states[i].LEDOn = false
		s.writeLED(ch, false, &rep)
	}
	return rep.Errors
}

// WakePins returns the input pins that may wake the kiosk.
func (s *Scanner) WakePins() []int {
	return s.reg.InputPins()
}

// LastActivity returns the time of the most recent confirmed press, or the
// scanner's start time if there has been none.
func (s *Scanner) LastActivity() time.Time {
	return s.activity.LastAction()
}

// State returns a copy of a channel's runtime state.
func (s *Scanner) State(id int) (ChannelState, bool) {
	if id < 0 || id >= len(s.states) {
		return ChannelState{}, false
	}
	return s.states[id], true
}

// Snapshot returns the current view of every channel.
func (s *Scanner) Snapshot() []ChannelSnapshot {
	out := make([]ChannelSnapshot, len(s.states))
	for i, ch := range s.reg.channels {
		out[i] = ChannelSnapshot{
			Channel: ch,
			Pressed: s.states[i].Stable,
			LEDOn:   s.states[i].LEDOn,
			Presses: s.presses[i],
		}
	}
	return out
}
