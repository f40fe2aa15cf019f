package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Kiosk         string        `json:"kiosk,omitempty"`
	State         string        `json:"state"`
	Channels      []ChannelJSON `json:"channels"`
	TotalVotes    int           `json:"total_votes"`
	LastVote      *VoteJSON     `json:"last_vote,omitempty"`
	Sleeps        int           `json:"sleeps"`
	ClockSynced   bool          `json:"clock_synced"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// Kiosk states reported in StatusInner.State.
const (
	StateAwake  = "AWAKE"
	StateAsleep = "ASLEEP"
)

// ChannelJSON is the JSON representation of one button.
type ChannelJSON struct {
	ID      int    `json:"id"`
	Label   string `json:"label"`
	Pressed bool   `json:"pressed"`
	LED     bool   `json:"led"`
	Votes   int    `json:"votes"`
}

// VoteJSON is the JSON representation of the last vote.
type VoteJSON struct {
	Channel   int    `json:"channel"`
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs        int64  `json:"poll_ms"`
	DebounceMs    int64  `json:"debounce_ms"`
	LEDOnMs       int64  `json:"led_on_ms"`
	IdleTimeoutMs int64  `json:"idle_timeout_ms"`
	Broker        string `json:"broker"`
	HTTPPort      string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	state := StateAwake
	if snap.Asleep {
		state = StateAsleep
	}

	channels := make([]ChannelJSON, len(snap.Channels))
	for i, ch := range snap.Channels {
		channels[i] = ChannelJSON{
			ID:      ch.ID,
			Label:   ch.Label,
			Pressed: ch.Pressed,
			LED:     ch.LEDOn,
			Votes:   ch.Votes,
		}
	}

	inner := StatusInner{
		Kiosk:         snap.Config.Kiosk,
		State:         state,
		Channels:      channels,
		TotalVotes:    snap.TotalVotes,
		Sleeps:        snap.Sleeps,
		ClockSynced:   snap.ClockSynced,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker, Buffered: snap.MQTTBuffered},
		Config: ConfigJSON{
			PollMs:        snap.Config.PollMs,
			DebounceMs:    snap.Config.DebounceMs,
			LEDOnMs:       snap.Config.LEDOnMs,
			IdleTimeoutMs: snap.Config.IdleTimeoutMs,
			Broker:        snap.Config.Broker,
			HTTPPort:      snap.Config.HTTPPort,
		},
	}

	if snap.LastVote != nil {
		inner.LastVote = &VoteJSON{
			Channel:   snap.LastVote.ChannelID,
			Label:     snap.LastVote.Label,
			Timestamp: snap.LastVote.At.UTC().Format(time.RFC3339Nano),
		}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
