package sensor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
)

// SamplerConfig controls unit conversion.
type SamplerConfig struct {
	// OffsetC is added to every raw Celsius reading (calibration).
	OffsetC float64
	// Fahrenheit converts temperatures before they leave the sampler.
	Fahrenheit bool
}

// Sampler is the sensor poller: on every tick it reads the source and
// enqueues a sensor-update message. Ticks with no new reading send
// nothing. Read failures are logged and the next tick retries.
type Sampler struct {
	src     Source
	out     chan<- message.Message
	cfg     SamplerConfig
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	failing bool
}

// NewSampler creates a Sampler sending to out.
func NewSampler(src Source, out chan<- message.Message, cfg SamplerConfig, log *zap.Logger, m *metrics.Metrics) *Sampler {
	return &Sampler{
		src:     src,
		out:     out,
		cfg:     cfg,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Convert applies calibration and display units to a raw sample.
func (s *Sampler) Convert(raw logic.Sample) logic.Sample {
	out := raw
	out.Temperature = raw.Temperature + s.cfg.OffsetC
	if s.cfg.Fahrenheit {
		out.Temperature = ToFahrenheit(out.Temperature)
	}
	if out.Time.IsZero() {
		out.Time = s.now()
	}
	return out
}

// SampleOnce performs a single read and enqueue. It blocks while the
// inbound channel is full, until ctx is done. ErrNotNew is returned
// without counting as a failure.
func (s *Sampler) SampleOnce(ctx context.Context) error {
	raw, err := s.src.Read()
	if errors.Is(err, ErrNotNew) {
		return err
	}
	if err != nil {
		s.metrics.SensorReadErrors.Inc()
		if !s.failing {
			s.log.Warn("sensor read failed", zap.Error(err))
			s.failing = true
		}
		return err
	}
	if s.failing {
		s.log.Info("sensor read recovered")
		s.failing = false
	}

	msg := message.New(message.KindSensorUpdate, "", message.Params{
		message.ParamSample: s.Convert(raw),
	})
	select {
	case s.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run samples on every tick until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.SampleOnce(ctx)
		}
	}
}
