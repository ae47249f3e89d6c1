package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
)

// Error strings published for rejected commands.
const (
	ErrTextInvalidToken = "invalid token"
	ErrTextInvalidInfo  = "invalid information"
	ErrTextUnavailable  = "unavailable"
)

// CommandPayload is a remote command received on the command topic.
type CommandPayload struct {
	ID     string `json:"id,omitempty"`
	Token  string `json:"token"`
	Action string `json:"action"`
	Value  any    `json:"value,omitempty"`
}

// StateReply is published on the state topic for every command.
type StateReply struct {
	ID     string         `json:"id,omitempty"`
	Action string         `json:"action,omitempty"`
	Result message.Params `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// StatePublisher publishes command replies.
type StatePublisher interface {
	PublishState(payload []byte) error
}

// QueueSize bounds the payloads waiting for the listener worker.
const QueueSize = 32

// Listener turns command-topic payloads into remote-command messages.
// Payloads handed to Enqueue are processed one at a time by Run, in
// arrival order.
type Listener struct {
	token   string
	out     chan<- message.Message
	pub     StatePublisher
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	queue   chan []byte
}

// NewListener creates a Listener. token is the shared access token;
// timeout bounds how long a get_state waits for the orchestrator.
func NewListener(token string, out chan<- message.Message, pub StatePublisher, timeout time.Duration, log *zap.Logger, m *metrics.Metrics) *Listener {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Listener{
		token:   token,
		out:     out,
		pub:     pub,
		timeout: timeout,
		log:     log,
		metrics: m,
		queue:   make(chan []byte, QueueSize),
	}
}

// Enqueue hands a payload to the worker without blocking. The payload is
// copied. It reports false when the queue is full and the payload was
// dropped.
func (l *Listener) Enqueue(payload []byte) bool {
	p := append([]byte(nil), payload...)
	select {
	case l.queue <- p:
		return true
	default:
		l.metrics.DroppedTotal.WithLabelValues("command-queue-full").Inc()
		l.log.Warn("command queue full, dropping payload", zap.Int("size", len(p)))
		return false
	}
}

// Run handles queued payloads until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-l.queue:
			l.Handle(ctx, p)
		}
	}
}

// Handle processes one command payload and publishes the reply.
func (l *Listener) Handle(ctx context.Context, payload []byte) {
	reply, outcome := l.process(ctx, payload)
	action := reply.Action
	if action == "" {
		action = "unknown"
	}
	l.metrics.RemoteRequests.WithLabelValues(action, outcome).Inc()

	data, err := json.Marshal(reply)
	if err != nil {
		l.log.Error("encode command reply", zap.Error(err))
		return
	}
	if err := l.pub.PublishState(data); err != nil {
		l.log.Warn("publish command reply", zap.Error(err))
	}
}

func (l *Listener) process(ctx context.Context, payload []byte) (StateReply, string) {
	var cmd CommandPayload
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&cmd); err != nil {
		l.log.Debug("undecodable command", zap.Error(err))
		return StateReply{Error: ErrTextInvalidInfo}, "invalid"
	}
	reply := StateReply{ID: cmd.ID, Action: cmd.Action}

	if err := message.CheckToken(l.token, cmd.Token); err != nil {
		reply.Error = ErrTextInvalidToken
		return reply, "unauthorized"
	}
	action, err := message.ParseAction(cmd.Action)
	if err != nil {
		reply.Error = ErrTextInvalidInfo
		return reply, "invalid"
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	result, err := message.Submit(ctx, l.out, action, cmd.Value)
	switch {
	case err == nil:
	case errors.Is(err, message.ErrBadParam), errors.Is(err, message.ErrMissingParam):
		reply.Error = ErrTextInvalidInfo
		return reply, "invalid"
	default:
		l.log.Warn("remote command failed", zap.String("action", cmd.Action), zap.Error(err))
		reply.Error = ErrTextUnavailable
		return reply, "error"
	}

	if result == nil {
		result = message.Params{"status": "ok"}
	}
	reply.Result = result
	return reply, "ok"
}
