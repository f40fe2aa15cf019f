// Package mqtt publishes kiosk votes and lifecycle events, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "feedback/kiosk"

// Topics holds the MQTT topics the kiosk publishes to.
type Topics struct {
	Votes  string
	System string
}

// TopicsFor derives the vote and system topics from a prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Votes:  prefix + "/votes",
		System: prefix + "/system",
	}
}

// System event names.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventSleep    = "SLEEP"
	EventWake     = "WAKE"
	EventOffline  = "OFFLINE"
)

// Publisher publishes kiosk messages to MQTT.
type Publisher interface {
	// Publish sends a vote to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(vote Vote) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active and how
// many messages are waiting for it.
type ConnectionStatus interface {
	IsConnected() bool
	Buffered() int
}

// Vote is one confirmed button press, stamped with wall-clock time.
type Vote struct {
	Timestamp   time.Time
	Kiosk       string
	ChannelID   int
	Label       string
	ClockSynced bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, sleep, wake).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" on shutdown, wake pins on wake
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message payload for a vote.
type Payload struct {
	Vote VotePayload `json:"vote"`
}

// VotePayload contains the vote details.
type VotePayload struct {
	Timestamp   string `json:"timestamp"`
	Kiosk       string `json:"kiosk,omitempty"`
	Channel     int    `json:"channel"`
	Label       string `json:"label"`
	ClockSynced bool   `json:"clock_synced"`
}

// FormatPayload creates the JSON payload for a vote.
func FormatPayload(vote Vote) ([]byte, error) {
	payload := Payload{
		Vote: VotePayload{
			Timestamp:   vote.Timestamp.UTC().Format(time.RFC3339Nano),
			Kiosk:       vote.Kiosk,
			Channel:     vote.ChannelID,
			Label:       vote.Label,
			ClockSynced: vote.ClockSynced,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message payload for simple system events
// (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Event:  event.Event,
			Reason: event.Reason,
		},
	}
	if !event.Timestamp.IsZero() {
		payload.System.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(payload)
}
