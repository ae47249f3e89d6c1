// Package mqtt publishes controller events to MQTT and accepts remote
// commands from it.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fancoil-controller/internal/logic"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "energy/fancoil"

// Topics are the controller's MQTT topics under one prefix.
type Topics struct {
	Events  string // actuator on/off events
	System  string // STARTUP, SHUTDOWN, HEARTBEAT, OFFLINE, RECONNECTED
	Command string // inbound remote commands
	State   string // replies to remote commands
}

// TopicsFor derives the topics from prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Events:  prefix + "/events",
		System:  prefix + "/system",
		Command: prefix + "/command",
		State:   prefix + "/state",
	}
}

// Publisher publishes events to MQTT. Failures are returned to the caller
// and must not stop the process.
type Publisher interface {
	// PublishActuator sends an actuator transition.
	PublishActuator(event ActuatorEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// PublishState sends a reply to a remote command.
	PublishState(payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Actuator event names.
const (
	EventActuatorOn  = "ACTUATOR_ON"
	EventActuatorOff = "ACTUATOR_OFF"
)

// ActuatorEvent is published whenever the coil starts or stops.
type ActuatorEvent struct {
	Timestamp   time.Time
	Running     bool
	Speed       int
	Mode        logic.Mode
	Temperature float64
	Target      float64
}

// Name returns ACTUATOR_ON or ACTUATOR_OFF.
func (e ActuatorEvent) Name() string {
	if e.Running {
		return EventActuatorOn
	}
	return EventActuatorOff
}

// SystemEvent represents a system lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the actuator event wire format.
type Payload struct {
	FanCoil FanCoilPayload `json:"fancoil"`
}

// FanCoilPayload contains the actuator event details.
type FanCoilPayload struct {
	Timestamp   string  `json:"timestamp"`
	Event       string  `json:"event"`
	Mode        string  `json:"mode"`
	Speed       int     `json:"speed"`
	Temperature float64 `json:"temperature"`
	Target      float64 `json:"target"`
}

// FormatPayload creates the JSON payload for an actuator event.
func FormatPayload(event ActuatorEvent) ([]byte, error) {
	return json.Marshal(Payload{
		FanCoil: FanCoilPayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Event:       event.Name(),
			Mode:        string(event.Mode),
			Speed:       event.Speed,
			Temperature: event.Temperature,
			Target:      event.Target,
		},
	})
}

// SystemPayload is used for simple events (LWT, RECONNECTED) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// RawPayload, when set, is returned unchanged.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
