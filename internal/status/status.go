// Package status provides a thread-safe status tracker for the kiosk daemon.
// It is read by the HTTP handlers and by MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/feedback-kiosk/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Kiosk         string
	PollMs        int64
	DebounceMs    int64
	LEDOnMs       int64
	IdleTimeoutMs int64
	Broker        string
	HTTPPort      string
}

// ChannelStatus is the live view of one button.
type ChannelStatus struct {
	ID      int
	Label   string
	Pressed bool
	LEDOn   bool
	Votes   int
}

// Vote is the most recent confirmed press.
type Vote struct {
	ChannelID int
	Label     string
	At        time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; Channels is copied and safe to keep.
type Snapshot struct {
	Channels      []ChannelStatus
	TotalVotes    int
	LastVote      *Vote
	Sleeps        int
	Asleep        bool
	ClockSynced   bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	MQTTBuffered  int
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	votes map[int]int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		votes: make(map[int]int),
	}
}

// Update sets the live channel states. Called from runLoop on every tick.
// Vote counts come from RecordVote, since the scanner is rebuilt after
// every wake and its own counters restart.
func (t *Tracker) Update(channels []logic.ChannelSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ChannelStatus, len(channels))
	for i, ch := range channels {
		out[i] = ChannelStatus{
			ID:      ch.ID,
			Label:   ch.Label,
			Pressed: ch.Pressed,
			LEDOn:   ch.LEDOn,
			Votes:   t.votes[ch.ID],
		}
	}
	t.snap.Channels = out
	t.snap.Asleep = false
}

// RecordVote counts a confirmed press.
func (t *Tracker) RecordVote(channelID int, label string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.votes[channelID]++
	t.snap.TotalVotes++
	t.snap.LastVote = &Vote{ChannelID: channelID, Label: label, At: at}
	for i := range t.snap.Channels {
		if t.snap.Channels[i].ID == channelID {
			t.snap.Channels[i].Votes = t.votes[channelID]
		}
	}
}

// RecordSleep marks the kiosk as entering low power.
func (t *Tracker) RecordSleep() {
	t.mu.Lock()
	t.snap.Sleeps++
	t.snap.Asleep = true
	for i := range t.snap.Channels {
		t.snap.Channels[i].LEDOn = false
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetMQTTBuffered records how many messages are waiting for the broker.
func (t *Tracker) SetMQTTBuffered(n int) {
	t.mu.Lock()
	t.snap.MQTTBuffered = n
	t.mu.Unlock()
}

// SetClockSynced records whether NTP sync succeeded.
func (t *Tracker) SetClockSynced(synced bool) {
	t.mu.Lock()
	t.snap.ClockSynced = synced
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]ChannelStatus(nil), t.snap.Channels...)
	if t.snap.LastVote != nil {
		v := *t.snap.LastVote
		s.LastVote = &v
	}
	if t.snap.Network != nil {
		n := *t.snap.Network
		s.Network = &n
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
