package message

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCopiesParams(t *testing.T) {
	p := Params{"a": 1.0}
	m := New(KindDisplayUpdate, "", p)
	p["a"] = 2.0

	got, err := m.Float("a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestFloatAcceptsNumericForms(t *testing.T) {
	m := Message{Params: Params{
		"f":   72.5,
		"i":   70,
		"num": json.Number("68.5"),
		"s":   "71",
	}}
	for key, want := range map[string]float64{"f": 72.5, "i": 70, "num": 68.5, "s": 71} {
		got, err := m.Float(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
}

func TestFloatErrors(t *testing.T) {
	m := Message{Params: Params{"b": true, "s": "warm"}}

	_, err := m.Float("missing")
	assert.True(t, errors.Is(err, ErrMissingParam), "missing: %v", err)

	_, err = m.Float("b")
	assert.True(t, errors.Is(err, ErrBadParam), "bool: %v", err)

	_, err = m.Float("s")
	assert.True(t, errors.Is(err, ErrBadParam), "string: %v", err)
}

func TestIntRejectsFraction(t *testing.T) {
	m := Message{Params: Params{"v": 2.5, "w": 2.0}}

	_, err := m.Int("v")
	assert.True(t, errors.Is(err, ErrBadParam))

	n, err := m.Int("w")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestValueTypeAssertion(t *testing.T) {
	type payload struct{ X int }
	m := Message{Params: Params{"p": payload{X: 3}}}

	v, err := Value[payload](m, "p")
	require.NoError(t, err)
	assert.Equal(t, 3, v.X)

	_, err = Value[string](m, "p")
	assert.True(t, errors.Is(err, ErrBadParam))
}

func TestReplyCarriesCorrelation(t *testing.T) {
	req := Message{Kind: KindRemoteCommand, Action: ActionGetState, ID: "abc"}

	r := Reply(req, Params{"speed": 2})
	assert.Equal(t, KindAppReply, r.Kind)
	assert.Equal(t, "abc", r.ID)
	assert.Equal(t, ActionGetState, r.Action)
	assert.NoError(t, r.Err())

	e := ErrorReply(req, errors.New("boom"))
	require.Error(t, e.Err())
	assert.Equal(t, "boom", e.Err().Error())
}

func TestWireShape(t *testing.T) {
	m := New(KindRemoteCommand, ActionSetSpeed, Params{"value": 2})
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"remote-command","action":"set_speed","params":{"value":2}}`, string(data))
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"switch", "set_temperature", "set_speed", "get_state"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, Action(s), a)
	}
	_, err := ParseAction("reboot")
	assert.True(t, errors.Is(err, ErrUnknownAction))
}

func TestNewRemoteCommand(t *testing.T) {
	m, err := NewRemoteCommand(ActionSwitch, " ON ")
	require.NoError(t, err)
	assert.Equal(t, KindRemoteCommand, m.Kind)
	assert.Equal(t, "on", m.Params[ParamValue])

	m, err = NewRemoteCommand(ActionSetTemperature, "70")
	require.NoError(t, err)
	assert.Equal(t, 70.0, m.Params[ParamValue])

	m, err = NewRemoteCommand(ActionSetSpeed, 3.0)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Params[ParamValue])

	m, err = NewRemoteCommand(ActionGetState, nil)
	require.NoError(t, err)
	assert.Equal(t, ActionGetState, m.Action)
}

func TestNewRemoteCommandRejects(t *testing.T) {
	tests := []struct {
		action Action
		value  any
		want   error
	}{
		{ActionSwitch, "maybe", ErrBadParam},
		{ActionSwitch, nil, ErrMissingParam},
		{ActionSetTemperature, "hot", ErrBadParam},
		{ActionSetSpeed, 4, ErrBadParam},
		{ActionSetSpeed, -1, ErrBadParam},
		{ActionSetSpeed, 1.5, ErrBadParam},
		{Action("dance"), nil, ErrUnknownAction},
	}
	for _, tt := range tests {
		_, err := NewRemoteCommand(tt.action, tt.value)
		assert.True(t, errors.Is(err, tt.want), "%s(%v): got %v, want %v", tt.action, tt.value, err, tt.want)
	}
}

func TestCheckToken(t *testing.T) {
	assert.NoError(t, CheckToken("s3cret", "s3cret"))
	assert.ErrorIs(t, CheckToken("s3cret", "guess"), ErrInvalidToken)
	assert.ErrorIs(t, CheckToken("s3cret", ""), ErrInvalidToken)
	assert.ErrorIs(t, CheckToken("", ""), ErrInvalidToken, "empty configured token rejects everything")
}

func TestRequestPairsReplyByID(t *testing.T) {
	out := make(chan Message, 1)
	go func() {
		req := <-out
		req.ReplyTo <- Reply(req, Params{"usr_temp": 70.0})
	}()

	req, err := NewRemoteCommand(ActionGetState, nil)
	require.NoError(t, err)
	reply, err := Request(context.Background(), out, req)
	require.NoError(t, err)
	assert.Equal(t, KindAppReply, reply.Kind)
	assert.NotEmpty(t, reply.ID)
	assert.Equal(t, 70.0, reply.Params["usr_temp"])
}

func TestRequestGivesUpOnContext(t *testing.T) {
	out := make(chan Message) // nobody reads
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Request(ctx, out, Message{Kind: KindRemoteCommand, Action: ActionGetState})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestRejectsMismatchedReply(t *testing.T) {
	out := make(chan Message, 1)
	go func() {
		req := <-out
		req.ReplyTo <- Message{Kind: KindAppReply, ID: "someone-else"}
	}()

	_, err := Request(context.Background(), out, Message{Kind: KindRemoteCommand, Action: ActionGetState})
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	out := make(chan Message, 1)
	ctx := context.Background()

	params, err := Submit(ctx, out, ActionSetSpeed, 2.0)
	require.NoError(t, err)
	assert.Nil(t, params)
	m := <-out
	assert.Equal(t, KindRemoteCommand, m.Kind)
	assert.Equal(t, 2, m.Params[ParamValue])

	_, err = Submit(ctx, out, ActionSetSpeed, 9)
	assert.ErrorIs(t, err, ErrBadParam)
	assert.Len(t, out, 0, "invalid commands are never enqueued")

	go func() {
		req := <-out
		req.ReplyTo <- ErrorReply(req, errors.New("not ready"))
	}()
	_, err = Submit(ctx, out, ActionGetState, nil)
	assert.EqualError(t, err, "not ready")
}
