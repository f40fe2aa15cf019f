package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Defaults for Options.
const (
	DefaultClientID     = "feedback-kiosk"
	DefaultBufferSize   = 256
	DefaultWriteTimeout = 2 * time.Second
	ackTimeout          = 5 * time.Second
	maxAttempts         = 3
)

// Options configures a RealPublisher.
type Options struct {
	Broker       string
	ClientID     string
	Prefix       string
	Username     string
	Password     string
	BufferSize   int
	WriteTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker.
// Publishing never waits for the broker: messages sent while disconnected are
// buffered and replayed on reconnect, and acknowledgements are checked in the
// background.
type RealPublisher struct {
	client paho.Client
	topics Topics

	// mu guards buf and serializes hand-off to paho so replayed messages
	// reach the broker before newer ones.
	mu  sync.Mutex
	buf *outbox
}

// NewRealPublisher creates a publisher and starts connecting to the broker
// in the background.
func NewRealPublisher(opts Options) *RealPublisher {
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	p := &RealPublisher{
		topics: TopicsFor(opts.Prefix),
		buf:    newOutbox(opts.BufferSize),
	}

	// The will is registered at connect time, so it carries no timestamp.
	will, _ := FormatSystemPayload(SystemEvent{Event: EventOffline})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWriteTimeout(opts.WriteTimeout).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			log.Printf("mqtt: connected to %s", opts.Broker)
			p.flush()
		}).
		SetConnectionLostHandler(func(c paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	p.client = paho.NewClient(co)
	p.client.Connect()
	return p
}

// Publish sends a vote to the broker.
func (p *RealPublisher) Publish(vote Vote) error {
	payload, err := FormatPayload(vote)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 1 (at-least-once), not retained
	return p.send(bufferedMsg{topic: p.topics.Votes, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// send queues msg behind anything still waiting and, if the link is up,
// hands the whole queue to paho in order.
func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.push(msg)
	if p.client.IsConnectionOpen() {
		p.publishQueued()
	}
	return nil
}

// publishQueued must be called with mu held.
func (p *RealPublisher) publishQueued() {
	for _, msg := range p.buf.drainAll() {
		msg.attempts++
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		go p.await(token, msg)
	}
}

// await logs publishes the broker did not acknowledge. A failed message goes
// back to the front of the outbox and is retried at once if the link is
// still up, up to maxAttempts times.
func (p *RealPublisher) await(token paho.Token, msg bufferedMsg) {
	if !token.WaitTimeout(ackTimeout) {
		log.Printf("mqtt: publish to %s timed out", msg.topic)
		return
	}
	err := token.Error()
	if err == nil {
		return
	}
	if msg.attempts >= maxAttempts {
		log.Printf("mqtt: publish to %s failed after %d attempts, dropping: %v", msg.topic, msg.attempts, err)
		return
	}
	log.Printf("mqtt: publish to %s failed: %v", msg.topic, err)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.requeue(msg)
	if p.client.IsConnectionOpen() {
		p.publishQueued()
	}
}

// flush replays buffered messages. It runs on paho's connect goroutine.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.buf.len(); n > 0 {
		log.Printf("mqtt: replaying %d buffered messages", n)
	}
	p.publishQueued()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
