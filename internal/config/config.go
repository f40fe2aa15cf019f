// Package config loads the kiosk's static configuration from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/feedback-kiosk/internal/gpio"
	"github.com/sweeney/feedback-kiosk/internal/logic"
	"github.com/sweeney/feedback-kiosk/internal/mqtt"
	"github.com/sweeney/feedback-kiosk/internal/power"
	"github.com/sweeney/feedback-kiosk/internal/timesync"
)

// Config is the root configuration document.
type Config struct {
	Kiosk      string          `yaml:"kiosk"`
	Chip       string          `yaml:"chip"`
	Channels   []ChannelConfig `yaml:"channels"`
	Timing     TimingConfig    `yaml:"timing"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	NTP        NTPConfig       `yaml:"ntp"`
	Power      PowerConfig     `yaml:"power"`
	HTTP       string          `yaml:"http"`
	WSInterval time.Duration   `yaml:"ws_interval"`
}

// ChannelConfig describes one button/LED pair. Channel ids are their
// position in the list.
type ChannelConfig struct {
	Label  string `yaml:"label"`
	Button int    `yaml:"button"`
	LED    int    `yaml:"led"`
}

// TimingConfig holds the scan loop durations.
type TimingConfig struct {
	Poll        time.Duration `yaml:"poll"`
	Debounce    time.Duration `yaml:"debounce"`
	LEDOn       time.Duration `yaml:"led_on"`
	IdleTimeout time.Duration `yaml:"idle_timeout"` // 0 disables sleep
}

// MQTTConfig defines broker connection settings.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Buffer      int           `yaml:"buffer"`
	Timeout     time.Duration `yaml:"write_timeout"`
}

// NTPConfig defines time sync settings.
type NTPConfig struct {
	Servers  []string      `yaml:"servers"`
	Attempts int           `yaml:"attempts"`
	Timeout  time.Duration `yaml:"timeout"`
}

// PowerConfig defines optional commands run around low-power waits.
type PowerConfig struct {
	SleepHook   string        `yaml:"sleep_hook"`
	WakeHook    string        `yaml:"wake_hook"`
	HookTimeout time.Duration `yaml:"hook_timeout"`
}

// Validation errors.
var (
	ErrPoll     = errors.New("timing.poll must be positive")
	ErrDebounce = errors.New("timing.debounce must be positive")
	ErrLEDOn    = errors.New("timing.led_on must be positive")
	ErrBroker   = errors.New("mqtt.broker must be set")
)

// Default returns the stock four-button kiosk configuration.
func Default() Config {
	cfg := Config{
		Kiosk: "kiosk",
		Chip:  gpio.DefaultChip,
		Timing: TimingConfig{
			Poll:        10 * time.Millisecond,
			Debounce:    logic.DefaultDebounce,
			LEDOn:       logic.DefaultLEDOn,
			IdleTimeout: logic.DefaultIdleTimeout,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    mqtt.DefaultClientID,
			TopicPrefix: mqtt.DefaultPrefix,
			Buffer:      mqtt.DefaultBufferSize,
			Timeout:     mqtt.DefaultWriteTimeout,
		},
		NTP: NTPConfig{
			Servers:  []string{timesync.DefaultServer},
			Attempts: timesync.DefaultAttempts,
			Timeout:  timesync.DefaultTimeout,
		},
		HTTP:       ":8080",
		WSInterval: time.Second,
	}
	for _, ch := range logic.DefaultChannels() {
		cfg.Channels = append(cfg.Channels, ChannelConfig{Label: ch.Label, Button: ch.InputPin, LED: ch.OutputPin})
	}
	return cfg
}

// Load reads path over the defaults and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply overrides first.
func Read(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, keeping existing values for absent keys.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return nil
}

// Validate checks timing and the channel set.
func (c Config) Validate() error {
	if c.Timing.Poll <= 0 {
		return ErrPoll
	}
	if c.Timing.Debounce <= 0 {
		return ErrDebounce
	}
	if c.Timing.LEDOn <= 0 {
		return ErrLEDOn
	}
	// Sampling must resolve at least half the debounce window.
	if c.Timing.Poll > c.Timing.Debounce/2 {
		return fmt.Errorf("timing.poll %v must be at most half of timing.debounce %v", c.Timing.Poll, c.Timing.Debounce)
	}
	if c.MQTT.Broker == "" {
		return ErrBroker
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("channels: %w", err)
	}
	return nil
}

// Registry builds the channel registry.
func (c Config) Registry() (*logic.Registry, error) {
	return logic.NewRegistry(c.LogicChannels())
}

// LogicChannels converts the configured channels, assigning ids by position.
func (c Config) LogicChannels() []logic.Channel {
	out := make([]logic.Channel, len(c.Channels))
	for i, ch := range c.Channels {
		out[i] = logic.Channel{ID: i, Label: ch.Label, InputPin: ch.Button, OutputPin: ch.LED}
	}
	return out
}

// Timings returns the core timings.
func (c Config) Timings() logic.Timings {
	return logic.Timings{
		Debounce:    c.Timing.Debounce,
		LEDOn:       c.Timing.LEDOn,
		IdleTimeout: c.Timing.IdleTimeout,
	}
}

// OutputPins returns the LED pins in channel order.
func (c Config) OutputPins() []int {
	pins := make([]int, len(c.Channels))
	for i, ch := range c.Channels {
		pins[i] = ch.LED
	}
	return pins
}

// InputPins returns the button pins in channel order.
func (c Config) InputPins() []int {
	pins := make([]int, len(c.Channels))
	for i, ch := range c.Channels {
		pins[i] = ch.Button
	}
	return pins
}

// MQTTOptions returns publisher options.
func (c Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:       c.MQTT.Broker,
		ClientID:     c.MQTT.ClientID,
		Prefix:       c.MQTT.TopicPrefix,
		Username:     c.MQTT.Username,
		Password:     c.MQTT.Password,
		BufferSize:   c.MQTT.Buffer,
		WriteTimeout: c.MQTT.Timeout,
	}
}

// PowerOptions returns the low-power controller options.
func (c Config) PowerOptions() power.Options {
	return power.Options{
		SleepHook:   c.Power.SleepHook,
		WakeHook:    c.Power.WakeHook,
		HookTimeout: c.Power.HookTimeout,
	}
}
