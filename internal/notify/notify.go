// Package notify forwards confirmed presses to the vote publisher.
package notify

import (
	"log"
	"time"

	"github.com/sweeney/feedback-kiosk/internal/logic"
	"github.com/sweeney/feedback-kiosk/internal/mqtt"
)

// Clock converts scan-loop times into wall-clock times.
type Clock interface {
	Stamp(t time.Time) time.Time
	Synced() bool
}

// Recorder is told about every vote, e.g. to update a status page.
type Recorder interface {
	RecordVote(channelID int, label string, at time.Time)
}

// Notifier implements logic.Notifier. It never returns an error: publish
// failures are logged and dropped so the scan loop is never held up.
type Notifier struct {
	kiosk     string
	publisher mqtt.Publisher
	clock     Clock
	recorder  Recorder
}

// New creates a Notifier. recorder may be nil.
func New(kiosk string, publisher mqtt.Publisher, clock Clock, recorder Recorder) *Notifier {
	return &Notifier{
		kiosk:     kiosk,
		publisher: publisher,
		clock:     clock,
		recorder:  recorder,
	}
}

// Notify stamps and publishes a press.
func (n *Notifier) Notify(event logic.PressEvent) {
	vote := mqtt.Vote{
		Timestamp:   n.clock.Stamp(event.Timestamp),
		Kiosk:       n.kiosk,
		ChannelID:   event.ChannelID,
		Label:       event.Label,
		ClockSynced: n.clock.Synced(),
	}

	log.Printf("vote: %s (channel %d)", event.Label, event.ChannelID)

	if n.recorder != nil {
		n.recorder.RecordVote(event.ChannelID, event.Label, vote.Timestamp)
	}

	if err := n.publisher.Publish(vote); err != nil {
		log.Printf("vote publish error: %v", err)
		// Don't retry here; the publisher buffers while offline
	}
}
