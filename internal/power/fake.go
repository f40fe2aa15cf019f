package power

import (
	"context"
	"sync"
)

// SleepCall records one EnterLowPower invocation.
type SleepCall struct {
	Pins        []int
	TriggerHigh bool
}

// FakeSleeper is a test double that records sleep requests and returns a
// scripted wake cause.
type FakeSleeper struct {
	mu sync.Mutex

	// Calls contains every EnterLowPower invocation.
	Calls []SleepCall

	// Cause is returned on wake.
	Cause WakeCause

	// Err, if set, is returned instead of waking.
	Err error

	// Block makes EnterLowPower wait for ctx to be done.
	Block bool

	// OnSleep, if set, runs inside EnterLowPower before it returns.
	OnSleep func()
}

// EnterLowPower records the call and returns the scripted result.
func (f *FakeSleeper) EnterLowPower(ctx context.Context, wakePins []int, triggerHigh bool) (WakeCause, error) {
	f.mu.Lock()
	pins := append([]int(nil), wakePins...)
	f.Calls = append(f.Calls, SleepCall{Pins: pins, TriggerHigh: triggerHigh})
	cause, err, block, onSleep := f.Cause, f.Err, f.Block, f.OnSleep
	f.mu.Unlock()

	if onSleep != nil {
		onSleep()
	}
	if block {
		<-ctx.Done()
		return WakeCause{}, ctx.Err()
	}
	if err != nil {
		return WakeCause{}, err
	}
	return cause, nil
}

// CallCount returns the number of EnterLowPower invocations.
func (f *FakeSleeper) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
