package weather

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
)

// DefaultIntervalMinutes is the polling grid.
const DefaultIntervalMinutes = 5

// DefaultRetryDelay is the pause between failed attempts.
const DefaultRetryDelay = 3 * time.Second

// Poller refreshes outdoor conditions once per grid window. A window
// opens whenever the wall-clock minute is a multiple of the interval;
// inside a window the poller retries with a constant delay until a fetch
// succeeds or the context is cancelled.
type Poller struct {
	fetcher    Fetcher
	out        chan<- message.Message
	interval   int
	retryDelay time.Duration
	log        *zap.Logger
	metrics    *metrics.Metrics

	// lastWindow is the start of the most recent fulfilled window.
	lastWindow time.Time
}

// NewPoller creates a poller emitting weather-update messages on out.
func NewPoller(f Fetcher, out chan<- message.Message, intervalMinutes int, retryDelay time.Duration, log *zap.Logger, m *metrics.Metrics) *Poller {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Poller{
		fetcher:    f,
		out:        out,
		interval:   intervalMinutes,
		retryDelay: retryDelay,
		log:        log,
		metrics:    m,
	}
}

// PollOnce performs a single fetch attempt.
func (p *Poller) PollOnce(ctx context.Context) (Snapshot, error) {
	s, err := p.fetcher.Fetch(ctx)
	if err != nil {
		p.metrics.WeatherFetches.WithLabelValues("error").Inc()
		return Snapshot{}, err
	}
	p.metrics.WeatherFetches.WithLabelValues("ok").Inc()
	return s, nil
}

// FetchNow retries PollOnce until it succeeds, then emits one
// weather-update message. It only returns an error when ctx is done.
func (p *Poller) FetchNow(ctx context.Context) error {
	var snap Snapshot
	op := func() error {
		s, err := p.PollOnce(ctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warn("weather fetch failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.retryDelay), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return err
	}

	msg := message.New(message.KindWeatherUpdate, "", message.Params{message.ParamSnapshot: snap})
	select {
	case p.out <- msg:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.log.Debug("weather updated",
		zap.Float64("temperature", snap.Temperature),
		zap.String("condition", snap.Condition))
	return nil
}

// window returns the start of the grid window containing t, or false
// when t's minute is off the grid.
func (p *Poller) window(t time.Time) (time.Time, bool) {
	if t.Minute()%p.interval != 0 {
		return time.Time{}, false
	}
	return t.Truncate(time.Minute), true
}

// Check runs one scheduling step for the clock reading t.
func (p *Poller) Check(ctx context.Context, t time.Time) {
	w, ok := p.window(t)
	if !ok || w.Equal(p.lastWindow) {
		return
	}
	if err := p.FetchNow(ctx); err != nil {
		return
	}
	p.lastWindow = w
}

// Run checks the grid on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tick:
			p.Check(ctx, t)
		}
	}
}
