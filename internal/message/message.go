// Package message defines the single schema shared by every producer and
// the orchestrator: {kind, action, params}.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the producer-level category of a message.
type Kind string

const (
	KindSensorUpdate  Kind = "sensor-update"
	KindWeatherUpdate Kind = "weather-update"
	KindDisplayUpdate Kind = "display-update"
	KindRemoteCommand Kind = "remote-command"
	KindAppReply      Kind = "app-reply"
	KindShutdown      Kind = "shutdown"
)

// Action is a remote-command verb.
type Action string

const (
	ActionSwitch         Action = "switch"
	ActionSetTemperature Action = "set_temperature"
	ActionSetSpeed       Action = "set_speed"
	ActionGetState       Action = "get_state"
)

// Well-known parameter keys.
const (
	ParamValue    = "value"
	ParamSample   = "sample"
	ParamSnapshot = "snapshot"
	ParamError    = "error"
)

var (
	// ErrMissingParam is returned when a required parameter is absent.
	ErrMissingParam = errors.New("missing parameter")
	// ErrBadParam is returned when a parameter has the wrong type or range.
	ErrBadParam = errors.New("invalid parameter")
	// ErrUnknownAction is returned for remote actions outside the schema.
	ErrUnknownAction = errors.New("unknown action")
)

// Params carries the message payload.
type Params map[string]any

// Message is an immutable event. Producers build it with New; the
// orchestrator consumes it exactly once.
type Message struct {
	Kind   Kind   `json:"kind"`
	Action Action `json:"action,omitempty"`
	Params Params `json:"params,omitempty"`

	// ID correlates a synchronous request with its reply.
	ID string `json:"id,omitempty"`

	// ReplyTo receives the app-reply for synchronous requests. It must
	// be buffered so the orchestrator never blocks on it.
	ReplyTo chan<- Message `json:"-"`
}

// New builds a message, copying params so later changes by the producer
// are not observed by the consumer.
func New(kind Kind, action Action, params Params) Message {
	return Message{Kind: kind, Action: action, Params: copyParams(params)}
}

// Shutdown returns the message that stops the orchestrator loop.
func Shutdown() Message {
	return Message{Kind: KindShutdown}
}

// Reply builds the app-reply for req.
func Reply(req Message, params Params) Message {
	return Message{
		Kind:   KindAppReply,
		Action: req.Action,
		ID:     req.ID,
		Params: copyParams(params),
	}
}

// ErrorReply builds an app-reply carrying err.
func ErrorReply(req Message, err error) Message {
	return Reply(req, Params{ParamError: err.Error()})
}

// Err returns the error carried by a reply, if any.
func (m Message) Err() error {
	s, ok := m.Params[ParamError].(string)
	if !ok || s == "" {
		return nil
	}
	return errors.New(s)
}

func copyParams(p Params) Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Value returns params[key] as T.
func Value[T any](m Message, key string) (T, error) {
	var zero T
	raw, ok := m.Params[key]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %T", ErrBadParam, key, raw)
	}
	return v, nil
}

// Float returns params[key] as a float64. Integers, json.Number and
// numeric strings are accepted.
func (m Message) Float(key string) (float64, error) {
	raw, ok := m.Params[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadParam, key, err)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrBadParam, key, err)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrBadParam, key, raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrBadParam, key)
	}
	return f, nil
}

// Int returns params[key] as an int. Floats must be integral.
func (m Message) Int(key string) (int, error) {
	f, err := m.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrBadParam, key)
	}
	return int(f), nil
}

// String returns params[key] as a string.
func (m Message) String(key string) (string, error) {
	return Value[string](m, key)
}
