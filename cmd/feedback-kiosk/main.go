// Command feedback-kiosk scans the kiosk's feedback buttons, lights the
// matching LED on each press, publishes votes to MQTT and sleeps when idle.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/feedback-kiosk/internal/config"
	"github.com/sweeney/feedback-kiosk/internal/gpio"
	"github.com/sweeney/feedback-kiosk/internal/logic"
	"github.com/sweeney/feedback-kiosk/internal/mqtt"
	"github.com/sweeney/feedback-kiosk/internal/notify"
	"github.com/sweeney/feedback-kiosk/internal/power"
	"github.com/sweeney/feedback-kiosk/internal/status"
	"github.com/sweeney/feedback-kiosk/internal/timesync"
	"github.com/sweeney/feedback-kiosk/internal/web"
)

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("fatal: %v", err)
	}
	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// options is the resolved command line.
type options struct {
	cfg        config.Config
	printState bool
}

// parseArgs loads the config file and applies any flags that were given
// explicitly on top of it.
func parseArgs(args []string) (options, error) {
	fs := flag.NewFlagSet("feedback-kiosk", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (empty for built-in defaults)")
	poll := fs.Duration("poll", 0, "GPIO polling interval")
	debounce := fs.Duration("debounce", 0, "Debounce duration")
	ledOn := fs.Duration("led-on", 0, "How long an LED stays lit after a press")
	idle := fs.Duration("idle-timeout", 0, "Inactivity before low power (0 to disable)")
	broker := fs.String("broker", "", "MQTT broker address")
	httpAddr := fs.String("http", "", "HTTP status address (empty to disable)")
	printState := fs.Bool("print-state", false, "Print current button levels and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg, err := config.Read(*configPath)
	if err != nil {
		return options{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "poll":
			cfg.Timing.Poll = *poll
		case "debounce":
			cfg.Timing.Debounce = *debounce
		case "led-on":
			cfg.Timing.LEDOn = *ledOn
		case "idle-timeout":
			cfg.Timing.IdleTimeout = *idle
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP = *httpAddr
		}
	})

	if err := cfg.Validate(); err != nil {
		return options{}, fmt.Errorf("invalid config: %w", err)
	}
	return options{cfg: cfg, printState: *printState}, nil
}

func run(opts options) error {
	cfg := opts.cfg

	reg, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("channels: %w", err)
	}

	board, err := gpio.NewRealBoard(cfg.Chip, cfg.InputPins(), cfg.OutputPins())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	if opts.printState {
		return printState(os.Stdout, reg, board)
	}

	// Best effort: votes carry clock_synced=false if this fails
	syncer := timesync.NewSyncer(cfg.NTP.Servers, cfg.NTP.Attempts, cfg.NTP.Timeout)
	clock, err := syncer.Sync(context.Background())
	if err != nil {
		log.Printf("time sync failed, using local clock: %v", err)
	}

	publisher := mqtt.NewRealPublisher(cfg.MQTTOptions())
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), status.Config{
		Kiosk:         cfg.Kiosk,
		PollMs:        cfg.Timing.Poll.Milliseconds(),
		DebounceMs:    cfg.Timing.Debounce.Milliseconds(),
		LEDOnMs:       cfg.Timing.LEDOn.Milliseconds(),
		IdleTimeoutMs: cfg.Timing.IdleTimeout.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPPort:      cfg.HTTP,
	})
	tracker.SetClockSynced(clock.Synced())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	k := &kiosk{
		reg:        reg,
		board:      board,
		sleeper:    power.NewGPIOController(board, cfg.PowerOptions()),
		notifier:   notify.New(cfg.Kiosk, publisher, clock, tracker),
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		timings:    cfg.Timings(),
		now:        time.Now,
	}

	k.publishSystem(mqtt.EventStartup, "", true)

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, cfg.WSInterval)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http status server listening on %s", cfg.HTTP)
	}

	log.Printf("started: kiosk=%s channels=%d poll=%v debounce=%v led_on=%v idle=%v broker=%s",
		cfg.Kiosk, reg.Len(), cfg.Timing.Poll, cfg.Timing.Debounce, cfg.Timing.LEDOn, cfg.Timing.IdleTimeout, cfg.MQTT.Broker)

	ticker := time.NewTicker(cfg.Timing.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return k.runLoop(ticker.C, sigCh)
}

// kiosk holds the collaborators of the scan loop.
type kiosk struct {
	reg        *logic.Registry
	board      logic.IO
	sleeper    power.Sleeper
	notifier   logic.Notifier
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	timings    logic.Timings
	now        func() time.Time
}

func (k *kiosk) newScanner(now time.Time) (*logic.Scanner, error) {
	return logic.NewScanner(k.reg, k.board, k.notifier, k.timings, now)
}

// runLoop scans on every tick until a signal arrives. When the scanner
// reports idle it sleeps until a button wakes it, then starts a fresh
// scanner and replays the waking press.
func (k *kiosk) runLoop(tick <-chan time.Time, sig <-chan os.Signal) error {
	start := k.now()
	scanner, err := k.newScanner(start)
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}
	k.refresh(scanner)

	for {
		select {
		case s := <-sig:
			k.shutdown(s)
			return nil

		case t := <-tick:
			// The tick carries the sample time. A tick older than the
			// scanner was queued while asleep and would run its clock
			// backwards.
			if t.Before(start) {
				continue
			}
			rep := scanner.Scan(t)
			logReport(rep)
			k.refresh(scanner)

			if !rep.Idle {
				continue
			}

			log.Printf("idle since %s, entering low power", scanner.LastActivity().Format(time.RFC3339))
			k.tracker.RecordSleep()
			for _, err := range scanner.Quiesce() {
				log.Printf("quiesce: %v", err)
			}
			k.publishSystem(mqtt.EventSleep, "idle", false)

			cause, s, err := sleepUntilWake(k.sleeper, scanner.WakePins(), sig)
			if s != nil {
				k.shutdown(s)
				return nil
			}
			reason := pinList(cause.Pins())
			if err != nil {
				log.Printf("low power failed, staying awake: %v", err)
				reason = "error"
			}

			start = k.now()
			scanner, err = k.newScanner(start)
			if err != nil {
				return fmt.Errorf("init scanner after wake: %w", err)
			}
			// Drop the tick the ticker buffered while we slept
			select {
			case <-tick:
			default:
			}

			k.refresh(scanner)
			k.publishSystem(mqtt.EventWake, reason, false)
			logReport(scanner.Wake(cause.Pins(), start))
			k.refresh(scanner)
		}
	}
}

// sleepUntilWake enters low power and returns when a wake pin fires or a
// signal arrives. A signal cancels the wait and is returned.
func sleepUntilWake(sleeper power.Sleeper, pins []int, sig <-chan os.Signal) (power.WakeCause, os.Signal, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		cause power.WakeCause
		err   error
	}
	done := make(chan result, 1)
	go func() {
		cause, err := sleeper.EnterLowPower(ctx, pins, true)
		done <- result{cause, err}
	}()

	select {
	case r := <-done:
		return r.cause, nil, r.err
	case s := <-sig:
		cancel()
		<-done
		return power.WakeCause{}, s, nil
	}
}

func (k *kiosk) refresh(scanner *logic.Scanner) {
	k.tracker.Update(scanner.Snapshot())
	k.refreshMQTT()
}

func (k *kiosk) refreshMQTT() {
	if k.mqttStatus == nil {
		return
	}
	k.tracker.SetMQTTConnected(k.mqttStatus.IsConnected())
	k.tracker.SetMQTTBuffered(k.mqttStatus.Buffered())
}

func (k *kiosk) shutdown(s os.Signal) {
	log.Printf("received %v, shutting down", s)
	k.publishSystem(mqtt.EventShutdown, signalName(s), true)
}

func (k *kiosk) publishSystem(name, reason string, retained bool) {
	k.refreshMQTT()
	snap := k.tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  k.now(),
		Event:      name,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, name, reason),
	}
	if err := k.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", strings.ToLower(name), err)
		return
	}
	log.Printf("published %s event", strings.ToLower(name))
}

func logReport(rep logic.Report) {
	for _, err := range rep.Errors {
		log.Printf("gpio error: %v", err)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pinList formats wake pins as "4,33".
func pinList(pins []int) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func printState(w io.Writer, reg *logic.Registry, r logic.LevelReader) error {
	for _, ch := range reg.Channels() {
		level, err := r.ReadLevel(ch.InputPin)
		if err != nil {
			return fmt.Errorf("read %s: %w", ch.Label, err)
		}
		fmt.Fprintf(w, "%s (pin %d): %s\n", ch.Label, ch.InputPin, levelString(level))
	}
	return nil
}

func levelString(high bool) string {
	if high {
		return "PRESSED"
	}
	return "RELEASED"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
