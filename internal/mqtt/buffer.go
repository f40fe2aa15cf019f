package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	attempts int
}

// outbox holds messages published while the broker is unreachable and
// replays them oldest first. Not safe for concurrent use; the caller must
// synchronize.
//
// A retained message replaces any queued retained message on the same
// topic, since the broker would only keep the last one anyway. Votes are
// never coalesced. When the outbox is full the oldest message is dropped.
type outbox struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int // messages discarded since last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg bufferedMsg) {
	if msg.retained {
		for i, queued := range o.msgs {
			if queued.retained && queued.topic == msg.topic {
				o.remove(i)
				break
			}
		}
	}

	if len(o.msgs) == o.capacity {
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.capacity)
		}
		o.dropped++
		o.remove(0)
	}
	o.msgs = append(o.msgs, msg)
}

// requeue puts a message that failed to publish back at the front. It is
// discarded if the outbox is full or a newer retained message for its topic
// is already queued.
func (o *outbox) requeue(msg bufferedMsg) {
	if msg.retained {
		for _, queued := range o.msgs {
			if queued.retained && queued.topic == msg.topic {
				return
			}
		}
	}
	if len(o.msgs) == o.capacity {
		o.dropped++
		return
	}
	o.msgs = append(o.msgs, bufferedMsg{})
	copy(o.msgs[1:], o.msgs)
	o.msgs[0] = msg
}

func (o *outbox) remove(i int) {
	copy(o.msgs[i:], o.msgs[i+1:])
	o.msgs = o.msgs[:len(o.msgs)-1]
}

// drainAll returns queued messages oldest first and empties the outbox.
func (o *outbox) drainAll() []bufferedMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while offline", o.dropped)
	}

	result := make([]bufferedMsg, len(o.msgs))
	copy(result, o.msgs)
	o.msgs = o.msgs[:0]
	o.dropped = 0
	return result
}

func (o *outbox) len() int {
	return len(o.msgs)
}
