package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/feedback-kiosk/internal/gpio"
	"github.com/sweeney/feedback-kiosk/internal/logic"
	"github.com/sweeney/feedback-kiosk/internal/mqtt"
	"github.com/sweeney/feedback-kiosk/internal/notify"
	"github.com/sweeney/feedback-kiosk/internal/power"
	"github.com/sweeney/feedback-kiosk/internal/status"
	"github.com/sweeney/feedback-kiosk/internal/timesync"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

// --- flags ---

func TestParseArgsDefaults(t *testing.T) {
	opts, err := parseArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.printState {
		t.Error("print-state should default to false")
	}
	if opts.cfg.Timing.Debounce != 30*time.Millisecond || opts.cfg.Timing.IdleTimeout != 30*time.Second {
		t.Errorf("unexpected timings: %+v", opts.cfg.Timing)
	}
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosk.yaml")
	body := "kiosk: lobby\ntiming:\n  led_on: 3s\n  idle_timeout: 1m\nmqtt:\n  broker: tcp://file:1883\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, err := parseArgs([]string{"--config", path, "--idle-timeout", "0", "--broker", "tcp://flag:1883", "--print-state"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := opts.cfg
	if cfg.Kiosk != "lobby" || cfg.Timing.LEDOn != 3*time.Second {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.Timing.IdleTimeout != 0 {
		t.Errorf("explicit zero flag should override file, got %v", cfg.Timing.IdleTimeout)
	}
	if cfg.MQTT.Broker != "tcp://flag:1883" {
		t.Errorf("broker: got %s", cfg.MQTT.Broker)
	}
	if !opts.printState {
		t.Error("expected print-state")
	}
}

func TestParseArgsRejectsCoarsePoll(t *testing.T) {
	_, err := parseArgs([]string{"--poll", "20ms"})
	if err == nil || !strings.Contains(err.Error(), "at most half") {
		t.Errorf("expected poll validation error, got %v", err)
	}
}

func TestParseArgsEmptyHTTPDisables(t *testing.T) {
	opts, err := parseArgs([]string{"--http", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.cfg.HTTP != "" {
		t.Errorf("expected HTTP disabled, got %q", opts.cfg.HTTP)
	}
}

func TestPinListAndSignalName(t *testing.T) {
	if got := pinList([]int{4, 33}); got != "4,33" {
		t.Errorf("pinList: got %q", got)
	}
	if got := pinList(nil); got != "" {
		t.Errorf("pinList(nil): got %q", got)
	}
	if signalName(syscall.SIGINT) != "SIGINT" || signalName(syscall.SIGTERM) != "SIGTERM" {
		t.Error("unexpected signal names")
	}
	if signalName(syscall.SIGHUP) != "UNKNOWN" {
		t.Error("expected UNKNOWN for SIGHUP")
	}
}

func TestPrintState(t *testing.T) {
	reg, _ := logic.NewRegistry(logic.DefaultChannels())
	board := gpio.NewFakeBoard()
	board.Set(33, true)

	var buf bytes.Buffer
	if err := printState(&buf, reg, board); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "HAPPY (pin 4): RELEASED") || !strings.Contains(out, "SATISFIED (pin 33): PRESSED") {
		t.Errorf("unexpected output:\n%s", out)
	}

	board.ReadErrors[12] = errors.New("line busy")
	if err := printState(&buf, reg, board); err == nil {
		t.Error("expected read error")
	}
}

// --- runLoop tests ---

var base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// manualClock is read by runLoop for scanner construction and event
// timestamps. Scan times come from the ticks themselves.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type harness struct {
	board   *gpio.FakeBoard
	pub     *mqtt.FakePublisher
	sleeper *power.FakeSleeper
	tracker *status.Tracker
	clock   *manualClock
	k       *kiosk
}

func newHarness(t *testing.T, timings logic.Timings) *harness {
	t.Helper()
	reg, err := logic.NewRegistry(logic.DefaultChannels())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	h := &harness{
		board:   gpio.NewFakeBoard(),
		pub:     mqtt.NewFakePublisher(),
		sleeper: &power.FakeSleeper{},
		tracker: status.NewTracker(base, status.Config{Kiosk: "test"}),
		clock:   &manualClock{t: base},
	}
	h.k = &kiosk{
		reg:        reg,
		board:      h.board,
		sleeper:    h.sleeper,
		notifier:   notify.New("test", h.pub, timesync.Unsynced(), h.tracker),
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    h.tracker,
		timings:    timings,
		now:        h.clock.Now,
	}
	return h
}

// ticks returns n tick times, step apart, starting one step after base.
func ticks(n int, step time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i+1) * step)
	}
	return out
}

// drive runs the loop over the given ticks, then delivers sig and returns
// runLoop's error.
func (h *harness) drive(t *testing.T, at []time.Time, sig os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sigCh := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.k.runLoop(tick, sigCh)
	}()

	for _, ts := range at {
		select {
		case tick <- ts:
		case err := <-errCh:
			return err
		}
	}
	sigCh <- sig

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not exit after signal")
		return nil
	}
}

func testTimings() logic.Timings {
	return logic.Timings{Debounce: 30 * time.Millisecond, LEDOn: time.Second, IdleTimeout: time.Minute}
}

func TestRunLoopNoVotesWhenQuiet(t *testing.T) {
	h := newHarness(t, testTimings())

	if err := h.drive(t, ticks(10, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Votes) != 0 {
		t.Errorf("expected 0 votes, got %d", len(h.pub.Votes))
	}
	if names := h.pub.SystemEventNames(); len(names) != 1 || names[0] != mqtt.EventShutdown {
		t.Errorf("expected only SHUTDOWN, got %v", names)
	}
	if h.pub.SystemEvents[0].Reason != "SIGTERM" || !h.pub.SystemEvents[0].Retained {
		t.Errorf("unexpected shutdown event: %+v", h.pub.SystemEvents[0])
	}
}

func TestRunLoopPressPublishesVote(t *testing.T) {
	h := newHarness(t, testTimings())
	// Seed read, then t=10 low, high from t=20
	h.board.Script(4, false, false, true)

	if err := h.drive(t, ticks(6, 10*time.Millisecond), syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Votes) != 1 {
		t.Fatalf("expected 1 vote, got %d", len(h.pub.Votes))
	}
	v := h.pub.Votes[0]
	if v.Label != "HAPPY" || v.ChannelID != 0 || v.Kiosk != "test" {
		t.Errorf("unexpected vote: %+v", v)
	}
	if !v.Timestamp.Equal(base.Add(50 * time.Millisecond)) {
		t.Errorf("vote time: got %v, want t=50ms", v.Timestamp)
	}
	if !h.board.Output(26) {
		t.Error("HAPPY LED should be lit")
	}

	snap := h.tracker.Snapshot()
	if snap.TotalVotes != 1 || !snap.Channels[0].Pressed {
		t.Errorf("tracker not updated: %+v", snap)
	}
}

func TestRunLoopBounceRejected(t *testing.T) {
	h := newHarness(t, testTimings())
	h.board.Script(12, false, true, false, true, false, false, false, false)

	if err := h.drive(t, ticks(8, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(h.pub.Votes) != 0 {
		t.Errorf("bounce should not vote, got %d", len(h.pub.Votes))
	}
}

func TestRunLoopLEDTurnsOff(t *testing.T) {
	timings := testTimings()
	timings.LEDOn = 100 * time.Millisecond
	h := newHarness(t, timings)
	h.board.Script(34, false, true, true, true, true, false)

	// Press confirmed at t=40, LED off at t>=140
	if err := h.drive(t, ticks(16, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(h.pub.Votes) != 1 || h.pub.Votes[0].Label != "UNSATISFIED" {
		t.Fatalf("expected one UNSATISFIED vote, got %+v", h.pub.Votes)
	}
	if h.board.Output(14) {
		t.Error("LED should be off after hold time")
	}
	var on, off int
	for _, w := range h.board.Writes {
		if w.Pin == 14 {
			if w.High {
				on++
			} else {
				off++
			}
		}
	}
	// One low write at startup, one at expiry
	if on != 1 || off != 2 {
		t.Errorf("unexpected LED writes: on=%d off=%d", on, off)
	}
}

func TestRunLoopReadErrorKeepsRunning(t *testing.T) {
	h := newHarness(t, testTimings())
	h.board.Script(4, false, true)

	tick := make(chan time.Time)
	sigCh := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- h.k.runLoop(tick, sigCh) }()

	tick <- base.Add(10 * time.Millisecond)
	h.board.SetReadError(33, errors.New("gpio fault"))
	for _, ts := range ticks(6, 10*time.Millisecond)[1:] {
		tick <- ts
	}
	sigCh <- syscall.SIGTERM

	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(h.pub.Votes) != 1 || h.pub.Votes[0].Label != "HAPPY" {
		t.Errorf("other channels should keep working, got %+v", h.pub.Votes)
	}
}

func TestRunLoopStartupReadErrorIsFatal(t *testing.T) {
	h := newHarness(t, testTimings())
	h.board.ReadErrors[4] = errors.New("line busy")

	err := h.k.runLoop(make(chan time.Time), make(chan os.Signal))
	if err == nil || !strings.Contains(err.Error(), "init scanner") {
		t.Errorf("expected init scanner error, got %v", err)
	}
}

func TestRunLoopSleepAndWake(t *testing.T) {
	timings := testTimings()
	timings.IdleTimeout = 50 * time.Millisecond
	h := newHarness(t, timings)
	h.sleeper.Cause = power.WakeCause{Mask: gpio.Bit(4)}
	h.sleeper.OnSleep = func() {
		// The waking press holds HAPPY high through the rescan
		h.board.Set(4, true)
		h.clock.Set(base.Add(55 * time.Millisecond))
	}

	// Idle at t=50; t=60 runs on the fresh scanner
	if err := h.drive(t, ticks(6, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.sleeper.CallCount() != 1 {
		t.Fatalf("expected 1 sleep, got %d", h.sleeper.CallCount())
	}
	call := h.sleeper.Calls[0]
	if len(call.Pins) != 4 || call.Pins[0] != 4 || !call.TriggerHigh {
		t.Errorf("unexpected sleep call: %+v", call)
	}

	names := h.pub.SystemEventNames()
	want := []string{mqtt.EventSleep, mqtt.EventWake, mqtt.EventShutdown}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("system events: got %v, want %v", names, want)
	}
	if h.pub.SystemEvents[1].Reason != "4" {
		t.Errorf("wake reason: got %q, want 4", h.pub.SystemEvents[1].Reason)
	}

	if len(h.pub.Votes) != 1 || h.pub.Votes[0].Label != "HAPPY" {
		t.Fatalf("waking press should be replayed once, got %+v", h.pub.Votes)
	}
	if !h.board.Output(26) {
		t.Error("HAPPY LED should be lit after wake")
	}
	if snap := h.tracker.Snapshot(); snap.Sleeps != 1 || snap.Asleep {
		t.Errorf("unexpected tracker sleep state: sleeps=%d asleep=%v", snap.Sleeps, snap.Asleep)
	}
}

func TestRunLoopIgnoresTickQueuedDuringSleep(t *testing.T) {
	timings := testTimings()
	timings.IdleTimeout = 50 * time.Millisecond
	h := newHarness(t, timings)
	wake := base.Add(10 * time.Minute)

	h.sleeper.Cause = power.WakeCause{Mask: gpio.Bit(4)}
	h.sleeper.OnSleep = func() {
		h.board.Set(4, true)
		// ANGRY glitches high for 10ms after wake: seed low, high, high, low
		h.board.Script(12, false, true, true, false)
		h.clock.Set(wake)
	}

	at := ticks(5, 10*time.Millisecond) // idle at t=50
	at = append(at, base.Add(60*time.Millisecond))
	for i := 1; i <= 4; i++ {
		at = append(at, wake.Add(time.Duration(i)*10*time.Millisecond))
	}

	if err := h.drive(t, at, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.sleeper.CallCount() != 1 {
		t.Fatalf("expected 1 sleep, got %d", h.sleeper.CallCount())
	}
	if len(h.pub.Votes) != 1 || h.pub.Votes[0].Label != "HAPPY" {
		t.Fatalf("expected only the HAPPY wake vote, got %+v", h.pub.Votes)
	}
	if h.board.Output(25) {
		t.Error("ANGRY LED lit by a glitch shorter than the debounce window")
	}
}

func TestRunLoopQuiescesBeforeSleep(t *testing.T) {
	timings := testTimings()
	timings.IdleTimeout = 50 * time.Millisecond
	h := newHarness(t, timings)

	var litAtSleep []int
	h.sleeper.OnSleep = func() {
		for _, ch := range logic.DefaultChannels() {
			if h.board.Output(ch.OutputPin) {
				litAtSleep = append(litAtSleep, ch.OutputPin)
			}
		}
	}
	h.sleeper.Block = true

	// Press early so an LED is lit; idle is measured from the press
	h.board.Script(12, false, true)

	// Press at t=40, idle at t=90
	if err := h.drive(t, ticks(9, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if h.sleeper.CallCount() != 1 {
		t.Fatalf("expected 1 sleep, got %d", h.sleeper.CallCount())
	}
	if len(litAtSleep) != 0 {
		t.Errorf("LEDs lit while entering low power: %v", litAtSleep)
	}
}

func TestRunLoopSignalDuringSleep(t *testing.T) {
	timings := testTimings()
	timings.IdleTimeout = 30 * time.Millisecond
	h := newHarness(t, timings)
	h.sleeper.Block = true

	// Idle at t=30; the loop then blocks in low power until the signal
	if err := h.drive(t, ticks(3, 10*time.Millisecond), syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := h.pub.SystemEventNames()
	if strings.Join(names, ",") != "SLEEP,SHUTDOWN" {
		t.Errorf("system events: got %v", names)
	}
	if h.pub.SystemEvents[1].Reason != "SIGINT" {
		t.Errorf("shutdown reason: got %q", h.pub.SystemEvents[1].Reason)
	}
}

func TestRunLoopSleepFailureStaysAwake(t *testing.T) {
	timings := testTimings()
	timings.IdleTimeout = 30 * time.Millisecond
	h := newHarness(t, timings)
	h.sleeper.Err = errors.New("wait for wake: line closed")

	if err := h.drive(t, ticks(3, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := h.pub.SystemEventNames()
	if strings.Join(names, ",") != "SLEEP,WAKE,SHUTDOWN" {
		t.Fatalf("system events: got %v", names)
	}
	if h.pub.SystemEvents[1].Reason != "error" {
		t.Errorf("wake reason: got %q, want error", h.pub.SystemEvents[1].Reason)
	}
	if len(h.pub.Votes) != 0 {
		t.Errorf("failed sleep must not vote, got %d", len(h.pub.Votes))
	}
}

func TestRunLoopIdleDisabled(t *testing.T) {
	timings := testTimings()
	timings.IdleTimeout = 0
	h := newHarness(t, timings)

	if err := h.drive(t, ticks(50, 100*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if h.sleeper.CallCount() != 0 {
		t.Errorf("expected no sleep with idle disabled, got %d", h.sleeper.CallCount())
	}
}

func TestRunLoopPublishErrorsAreNotFatal(t *testing.T) {
	h := newHarness(t, testTimings())
	h.pub.PublishError = errors.New("broker down")
	h.pub.PublishSystemError = errors.New("broker down")
	h.board.Script(4, false, true)

	if err := h.drive(t, ticks(6, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if snap := h.tracker.Snapshot(); snap.TotalVotes != 1 {
		t.Errorf("vote should be counted locally, got %d", snap.TotalVotes)
	}
}

func TestRunLoopReportsMQTTStatus(t *testing.T) {
	h := newHarness(t, testTimings())
	h.pub.Connected = true
	h.pub.Queued = 3

	if err := h.drive(t, ticks(2, 10*time.Millisecond), syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	snap := h.tracker.Snapshot()
	if !snap.MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
	if snap.MQTTBuffered != 3 {
		t.Errorf("buffered: got %d, want 3", snap.MQTTBuffered)
	}
}
