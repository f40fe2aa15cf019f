package logic

import "time"

// ActivityTracker records the last confirmed press and decides when the
// kiosk has been idle long enough to sleep.
type ActivityTracker struct {
	lastAction time.Time
	signalled  bool
}

// NewActivityTracker creates a tracker whose idle period starts at now.
func NewActivityTracker(now time.Time) *ActivityTracker {
	return &ActivityTracker{lastAction: now}
}

// Record marks activity at now. The timestamp never moves backwards.
func (a *ActivityTracker) Record(now time.Time) {
	if now.After(a.lastAction) {
		a.lastAction = now
	}
	a.signalled = false
}

// Reset reinitializes the tracker, e.g. after waking from low power.
func (a *ActivityTracker) Reset(now time.Time) {
	a.lastAction = now
	a.signalled = false
}

// LastAction returns the time of the most recent activity.
func (a *ActivityTracker) LastAction() time.Time {
	return a.lastAction
}

// IsIdle reports whether no activity was recorded within threshold.
// A threshold <= 0 never reports idle.
func (a *ActivityTracker) IsIdle(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return now.Sub(a.lastAction) >= threshold
}

// CheckIdle is like IsIdle but returns true only once per idle period.
// The next Record or Reset re-arms it.
func (a *ActivityTracker) CheckIdle(now time.Time, threshold time.Duration) bool {
	if a.signalled || !a.IsIdle(now, threshold) {
		return false
	}
	a.signalled = true
	return true
}
