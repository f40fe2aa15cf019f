// Package power puts the kiosk into a low-power wait between interactions
// and reports which buttons woke it.
package power

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Sleeper enters low power and returns once a wake source fires.
type Sleeper interface {
	EnterLowPower(ctx context.Context, wakePins []int, triggerHigh bool) (WakeCause, error)
}

// Waiter is the GPIO side of a low-power wait.
type Waiter interface {
	Drain()
	WaitForLevel(ctx context.Context, pins []int, high bool) (uint64, error)
}

// WakeCause is the wake-status mask: bit n set means pin n woke the kiosk.
type WakeCause struct {
	Mask uint64
}

// Pins returns every pin whose bit is set, ascending. Each bit is tested on
// its own so simultaneous wakes are all reported.
func (w WakeCause) Pins() []int {
	var pins []int
	for pin := 0; pin < 64; pin++ {
		if w.Mask&(1<<uint(pin)) != 0 {
			pins = append(pins, pin)
		}
	}
	return pins
}

// Has reports whether pin is among the wake sources.
func (w WakeCause) Has(pin int) bool {
	if pin < 0 || pin > 63 {
		return false
	}
	return w.Mask&(1<<uint(pin)) != 0
}

// DefaultHookTimeout bounds each sleep/wake hook command.
const DefaultHookTimeout = 10 * time.Second

// Options configures a GPIOController.
type Options struct {
	// SleepHook runs after pending edges are drained, before waiting.
	SleepHook string
	// WakeHook runs after a wake source fires.
	WakeHook string
	// HookTimeout bounds each hook; zero means DefaultHookTimeout.
	HookTimeout time.Duration
}

// GPIOController waits for a button edge, optionally running shell hooks
// around the wait (e.g. to blank a display or lower the CPU governor).
type GPIOController struct {
	waiter Waiter
	opts   Options
	run    func(ctx context.Context, command string) error
}

// NewGPIOController creates a controller waiting on the given board.
func NewGPIOController(waiter Waiter, opts Options) *GPIOController {
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = DefaultHookTimeout
	}
	return &GPIOController{
		waiter: waiter,
		opts:   opts,
		run:    runShell,
	}
}

// EnterLowPower blocks until one of wakePins reaches the trigger level or ctx
// is done. Hook failures are logged and never prevent the wait.
func (c *GPIOController) EnterLowPower(ctx context.Context, wakePins []int, triggerHigh bool) (WakeCause, error) {
	if len(wakePins) == 0 {
		return WakeCause{}, fmt.Errorf("no wake pins")
	}

	c.waiter.Drain()
	log.Printf("power: entering low power, wake on pins %v going %s", wakePins, levelName(triggerHigh))
	c.hook(ctx, "sleep", c.opts.SleepHook)

	mask, err := c.waiter.WaitForLevel(ctx, wakePins, triggerHigh)
	if err != nil {
		return WakeCause{}, fmt.Errorf("wait for wake: %w", err)
	}

	cause := WakeCause{Mask: mask}
	log.Printf("power: woke on pins %v", cause.Pins())
	c.hook(ctx, "wake", c.opts.WakeHook)
	return cause, nil
}

func (c *GPIOController) hook(ctx context.Context, name, command string) {
	if command == "" {
		return
	}
	hctx, cancel := context.WithTimeout(ctx, c.opts.HookTimeout)
	defer cancel()
	if err := c.run(hctx, command); err != nil {
		log.Printf("power: %s hook failed: %v", name, err)
	}
}

func runShell(ctx context.Context, command string) error {
	out, err := exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%q: %w (%s)", command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func levelName(high bool) string {
	if high {
		return "HIGH"
	}
	return "LOW"
}
