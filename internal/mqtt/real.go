package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Options configures the broker connection.
type Options struct {
	Broker   string
	ClientID string
	Topics   Topics
	// OutboxSize bounds the publishes held while disconnected.
	OutboxSize int
}

// RealPublisher publishes to an actual MQTT broker. Publishes made while
// the connection is down are held in an outbox and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *zap.Logger

	mu        sync.Mutex
	box       *outbox
	subs      map[string]func([]byte)
	connected bool // at least one successful connection
}

// NewRealPublisher connects to the broker. An unreachable broker is not an
// error: paho keeps retrying in the background and publishes are held.
func NewRealPublisher(o Options, log *zap.Logger) (*RealPublisher, error) {
	if o.OutboxSize <= 0 {
		o.OutboxSize = 256
	}
	p := &RealPublisher{
		topics: o.Topics,
		log:    log,
		box:    newOutbox(o.OutboxSize, log),
		subs:   make(map[string]func([]byte)),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(o.Topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", zap.Error(err))
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn("mqtt broker not reachable yet, holding publishes", zap.String("broker", o.Broker))
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	held := p.box.drain()
	reconnect := p.connected
	p.connected = true
	subs := make(map[string]func([]byte), len(p.subs))
	for t, h := range p.subs {
		subs[t] = h
	}
	p.mu.Unlock()

	p.log.Info("mqtt connected", zap.Int("replaying", len(held)))
	for topic, h := range subs {
		p.subscribe(topic, h)
	}
	for _, m := range held {
		if err := p.send(m); err != nil {
			p.log.Warn("mqtt replay failed", zap.String("topic", m.topic), zap.Error(err))
		}
	}
	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			p.log.Warn("mqtt reconnected event failed", zap.Error(err))
		}
	}
}

func (p *RealPublisher) send(m pending) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) publish(m pending) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.box.push(m)
		p.mu.Unlock()
		return nil
	}
	return p.send(m)
}

// PublishActuator sends an actuator event (QoS 0, not retained).
func (p *RealPublisher) PublishActuator(event ActuatorEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(pending{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pending{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// PublishState sends a remote command reply (QoS 1).
func (p *RealPublisher) PublishState(payload []byte) error {
	return p.publish(pending{topic: p.topics.State, payload: payload, qos: 1})
}

// Subscribe registers h for topic. The subscription is renewed on every
// reconnect. h runs on the paho callback goroutine and must not block.
func (p *RealPublisher) Subscribe(topic string, h func([]byte)) {
	p.mu.Lock()
	p.subs[topic] = h
	p.mu.Unlock()
	if p.client.IsConnectionOpen() {
		p.subscribe(topic, h)
	}
}

func (p *RealPublisher) subscribe(topic string, h func([]byte)) {
	token := p.client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		h(m.Payload())
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		p.log.Warn("mqtt subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
