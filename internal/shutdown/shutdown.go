// Package shutdown sequences process termination: cancel the workers,
// hand the orchestrator its shutdown message and wait for it to drive the
// actuator off.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/relay"
)

// DefaultTimeout bounds each shutdown step.
const DefaultTimeout = 10 * time.Second

// ErrTimeout is returned when the orchestrator did not finish in time.
// The actuator has been driven off by the coordinator instead.
var ErrTimeout = errors.New("shutdown: orchestrator did not stop in time")

// Coordinator runs the shutdown sequence once.
type Coordinator struct {
	cancel   context.CancelFunc
	inbox    chan<- message.Message
	done     <-chan struct{}
	actuator relay.Actuator
	timeout  time.Duration
	log      *zap.Logger
}

// New creates a Coordinator. cancel is the root context's cancel func,
// inbox the orchestrator's inbound channel and done is closed when the
// orchestrator loop has returned.
func New(cancel context.CancelFunc, inbox chan<- message.Message, done <-chan struct{}, actuator relay.Actuator, timeout time.Duration, log *zap.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		cancel:   cancel,
		inbox:    inbox,
		done:     done,
		actuator: actuator,
		timeout:  timeout,
		log:      log,
	}
}

// Shutdown cancels the workers, enqueues the shutdown message and waits
// for the orchestrator to stop. If it does not stop in time the actuator
// is switched off here and ErrTimeout returned.
func (c *Coordinator) Shutdown(reason string) error {
	c.log.Info("shutting down", zap.String("reason", reason))
	c.cancel()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.inbox <- message.Shutdown():
	case <-c.done:
		c.log.Warn("orchestrator already stopped")
		return nil
	case <-timer.C:
		return c.fallback("enqueue")
	}

	select {
	case <-c.done:
		c.log.Info("orchestrator stopped cleanly")
		return nil
	case <-timer.C:
		return c.fallback("drain")
	}
}

func (c *Coordinator) fallback(step string) error {
	c.log.Error("orchestrator unresponsive, switching actuator off directly", zap.String("step", step))
	if err := c.actuator.AllOff(); err != nil {
		return errors.Join(ErrTimeout, err)
	}
	return ErrTimeout
}

// Signals returns a channel receiving SIGINT and SIGTERM and a func that
// stops delivery.
func Signals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

// SignalName returns the event reason for s.
func SignalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
