package sensor

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/logic"
)

// DefaultTopic is where the BME680 bridge publishes raw readings.
const DefaultTopic = "home/fancoil/sensor/raw"

// rawPayload is the bridge's JSON shape.
type rawPayload struct {
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	Temperature   *float64   `json:"temperature"`
	Pressure      float64    `json:"pressure"`
	Humidity      float64    `json:"humidity"`
	GasResistance float64    `json:"gas_resistance"`
	HeatStable    bool       `json:"heat_stable"`
}

// MQTTSource keeps the latest reading published by a sensor bridge.
// Each bridged reading is returned by Read once; later reads report
// ErrNotNew until the bridge publishes again. Readings older than maxAge
// are reported as ErrNoReading.
type MQTTSource struct {
	client paho.Client
	topic  string
	maxAge time.Duration
	now    func() time.Time
	log    *zap.Logger

	mu       sync.Mutex
	latest   logic.Sample
	seq      uint64
	consumed uint64
}

// NewMQTTSource creates a source fed by messages on topic. The
// subscription is (re)established on every connect.
func NewMQTTSource(opts *paho.ClientOptions, topic string, maxAge time.Duration, log *zap.Logger) *MQTTSource {
	s := &MQTTSource{
		topic:  topic,
		maxAge: maxAge,
		now:    time.Now,
		log:    log,
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		tok := c.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
			if err := s.handle(m.Payload()); err != nil {
				s.log.Warn("discarding sensor payload", zap.Error(err))
			}
		})
		if tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
			s.log.Warn("sensor subscribe failed", zap.String("topic", topic), zap.Error(tok.Error()))
		}
	})
	s.client = paho.NewClient(opts)
	s.client.Connect()
	return s
}

// handle decodes one bridge payload.
func (s *MQTTSource) handle(payload []byte) error {
	var p rawPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode sensor payload: %w", err)
	}
	if p.Temperature == nil {
		return fmt.Errorf("decode sensor payload: missing temperature")
	}

	ts := s.now()
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}

	s.mu.Lock()
	s.latest = logic.Sample{
		Time:          ts,
		Temperature:   *p.Temperature,
		Pressure:      p.Pressure,
		Humidity:      p.Humidity,
		GasResistance: p.GasResistance,
		HeatStable:    p.HeatStable,
	}
	s.seq++
	s.mu.Unlock()
	return nil
}

// Read returns the latest reading if it has not been read before. The
// sample keeps the bridge timestamp, or the receive time when the bridge
// sent none.
func (s *MQTTSource) Read() (logic.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq == 0 {
		return logic.Sample{}, ErrNoReading
	}
	if s.maxAge > 0 && s.now().Sub(s.latest.Time) > s.maxAge {
		return logic.Sample{}, fmt.Errorf("%w: last reading at %s", ErrNoReading, s.latest.Time.Format(time.RFC3339))
	}
	if s.consumed == s.seq {
		return logic.Sample{}, ErrNotNew
	}
	s.consumed = s.seq
	return s.latest, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() error {
	if s.client != nil {
		s.client.Disconnect(1000)
	}
	return nil
}
