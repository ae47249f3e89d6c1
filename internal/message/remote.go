package message

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Switch values accepted by ActionSwitch.
const (
	SwitchOn  = "on"
	SwitchOff = "off"
)

// MaxSpeed is the highest fan speed.
const MaxSpeed = 3

// ParseAction validates a remote action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionSwitch, ActionSetTemperature, ActionSetSpeed, ActionGetState:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// NewRemoteCommand validates a remote request and builds the
// remote-command message for it. The value is normalized: switch values
// are lower-cased, temperatures are float64 and speeds are int.
func NewRemoteCommand(action Action, value any) (Message, error) {
	probe := Message{Params: Params{ParamValue: value}}
	if value == nil {
		probe.Params = Params{}
	}

	var params Params
	switch action {
	case ActionSwitch:
		s, err := probe.String(ParamValue)
		if err != nil {
			return Message{}, err
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if s != SwitchOn && s != SwitchOff {
			return Message{}, fmt.Errorf("%w: switch must be %q or %q", ErrBadParam, SwitchOn, SwitchOff)
		}
		params = Params{ParamValue: s}
	case ActionSetTemperature:
		f, err := probe.Float(ParamValue)
		if err != nil {
			return Message{}, err
		}
		params = Params{ParamValue: f}
	case ActionSetSpeed:
		n, err := probe.Int(ParamValue)
		if err != nil {
			return Message{}, err
		}
		if n < 0 || n > MaxSpeed {
			return Message{}, fmt.Errorf("%w: speed %d outside 0..%d", ErrBadParam, n, MaxSpeed)
		}
		params = Params{ParamValue: n}
	case ActionGetState:
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return New(KindRemoteCommand, action, params), nil
}

// ErrInvalidToken rejects remote requests that fail authentication.
var ErrInvalidToken = errors.New("invalid token")

// CheckToken compares a request token with the configured one. An empty
// configured token rejects every request.
func CheckToken(want, got string) error {
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Send enqueues m, giving up when ctx is done.
func Send(ctx context.Context, out chan<- Message, m Message) error {
	select {
	case out <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request enqueues m with a fresh correlation id and its own reply
// channel, then waits for the app-reply.
func Request(ctx context.Context, out chan<- Message, m Message) (Message, error) {
	reply := make(chan Message, 1)
	m.ID = uuid.NewString()
	m.ReplyTo = reply
	if err := Send(ctx, out, m); err != nil {
		return Message{}, err
	}
	select {
	case r := <-reply:
		if r.ID != m.ID {
			return Message{}, fmt.Errorf("reply id %q does not match request %q", r.ID, m.ID)
		}
		return r, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Submit validates a remote command and enqueues it. get_state waits for
// the orchestrator's reply and returns its params; other actions return
// once enqueued.
func Submit(ctx context.Context, out chan<- Message, action Action, value any) (Params, error) {
	m, err := NewRemoteCommand(action, value)
	if err != nil {
		return nil, err
	}
	if action != ActionGetState {
		return nil, Send(ctx, out, m)
	}
	reply, err := Request(ctx, out, m)
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Params, nil
}
