package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func TestToFahrenheit(t *testing.T) {
	tests := []struct{ c, f float64 }{
		{0, 32},
		{100, 212},
		{21, 69.8},
		{-40, -40},
	}
	for _, tt := range tests {
		if got := ToFahrenheit(tt.c); math.Abs(got-tt.f) > 1e-9 {
			t.Errorf("ToFahrenheit(%v): got %v, want %v", tt.c, got, tt.f)
		}
	}
}

func TestHalfRound(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{70.0, 70},
		{70.3, 70},
		{70.49, 70},
		{70.5, 70.5},
		{70.7, 70.5},
		{70.99, 70.5},
	}
	for _, tt := range tests {
		if got := HalfRound(tt.in); got != tt.want {
			t.Errorf("HalfRound(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFakeSourceRepeatsLastSample(t *testing.T) {
	f := NewFakeSource(logic.Sample{Temperature: 20}, logic.Sample{Temperature: 21})

	for i, want := range []float64{20, 21, 21} {
		s, err := f.Read()
		require.NoError(t, err)
		if s.Temperature != want {
			t.Errorf("read %d: got %v, want %v", i, s.Temperature, want)
		}
	}
}

func TestFakeSourceNoSamples(t *testing.T) {
	_, err := NewFakeSource().Read()
	if !errors.Is(err, ErrNoReading) {
		t.Errorf("got %v, want ErrNoReading", err)
	}
}

func newTestSampler(src Source, out chan message.Message, cfg SamplerConfig) *Sampler {
	s := NewSampler(src, out, cfg, zap.NewNop(), metrics.New())
	s.now = func() time.Time { return t0 }
	return s
}

func TestSamplerConvertsAndEnqueues(t *testing.T) {
	src := NewFakeSource(logic.Sample{Temperature: 22.9, Humidity: 45, GasResistance: 90000, HeatStable: true})
	out := make(chan message.Message, 1)
	s := newTestSampler(src, out, SamplerConfig{OffsetC: -1.9, Fahrenheit: true})

	require.NoError(t, s.SampleOnce(context.Background()))

	msg := <-out
	assert.Equal(t, message.KindSensorUpdate, msg.Kind)
	sample, err := message.Value[logic.Sample](msg, message.ParamSample)
	require.NoError(t, err)
	// (22.9 - 1.9) * 9/5 + 32 = 69.8
	assert.InDelta(t, 69.8, sample.Temperature, 1e-9)
	assert.Equal(t, t0, sample.Time)
	assert.True(t, sample.HeatStable)
}

func TestSamplerReadErrorIsNotFatal(t *testing.T) {
	src := NewFakeSource(logic.Sample{Temperature: 20})
	src.SetError(errors.New("i2c timeout"))
	out := make(chan message.Message, 1)
	s := newTestSampler(src, out, SamplerConfig{})

	err := s.SampleOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.SensorReadErrors))
	assert.Len(t, out, 0)

	src.SetError(nil)
	require.NoError(t, s.SampleOnce(context.Background()))
	assert.Len(t, out, 1)
}

func TestSamplerRunStopsOnCancel(t *testing.T) {
	src := NewFakeSource(logic.Sample{Temperature: 20})
	out := make(chan message.Message, 4)
	s := newTestSampler(src, out, SamplerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		s.Run(ctx, tick)
		close(done)
	}()

	tick <- t0
	tick <- t0.Add(time.Second)
	require.Eventually(t, func() bool { return len(out) == 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Len(t, out, 2)
}

func TestSamplerUnblocksWhenQueueFullAndCancelled(t *testing.T) {
	src := NewFakeSource(logic.Sample{Temperature: 20})
	out := make(chan message.Message)
	s := newTestSampler(src, out, SamplerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SampleOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMQTTSourceHandle(t *testing.T) {
	now := t0
	s := &MQTTSource{maxAge: time.Minute, now: func() time.Time { return now }, log: zap.NewNop()}

	_, err := s.Read()
	assert.ErrorIs(t, err, ErrNoReading)

	err = s.handle([]byte(`{"temperature":21.5,"pressure":1013.2,"humidity":41,"gas_resistance":120000,"heat_stable":true}`))
	require.NoError(t, err)

	sample, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 21.5, sample.Temperature)
	assert.Equal(t, 1013.2, sample.Pressure)
	assert.True(t, sample.HeatStable)
	assert.Equal(t, t0, sample.Time)

	require.NoError(t, s.handle([]byte(`{"temperature":21.6}`)))
	now = now.Add(2 * time.Minute)
	_, err = s.Read()
	assert.ErrorIs(t, err, ErrNoReading, "stale reading must be rejected")
	assert.NotErrorIs(t, err, ErrNotNew)
}

func TestMQTTSourceReturnsEachReadingOnce(t *testing.T) {
	s := &MQTTSource{now: func() time.Time { return t0 }, log: zap.NewNop()}
	require.NoError(t, s.handle([]byte(`{"temperature":21.5,"gas_resistance":120000,"heat_stable":true}`)))

	_, err := s.Read()
	require.NoError(t, err)
	_, err = s.Read()
	assert.ErrorIs(t, err, ErrNotNew)

	require.NoError(t, s.handle([]byte(`{"temperature":21.5,"gas_resistance":121000,"heat_stable":true}`)))
	sample, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 121000.0, sample.GasResistance)
}

func TestSamplerSendsOneMessagePerBridgedReading(t *testing.T) {
	src := &MQTTSource{now: func() time.Time { return t0 }, log: zap.NewNop()}
	require.NoError(t, src.handle([]byte(`{"temperature":21.5,"gas_resistance":120000,"heat_stable":true}`)))
	out := make(chan message.Message, 16)
	s := newTestSampler(src, out, SamplerConfig{})

	for i := 0; i < 10; i++ {
		s.SampleOnce(context.Background())
	}
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.SensorReadErrors), "repeat ticks are not read errors")

	p := logic.NewPrimer(0, t0)
	for len(out) > 0 {
		sample, err := message.Value[logic.Sample](<-out, message.ParamSample)
		require.NoError(t, err)
		p.Ingest(sample)
	}
	assert.Equal(t, 1, p.Collected())
}

func TestMQTTSourceRejectsBadPayload(t *testing.T) {
	s := &MQTTSource{now: func() time.Time { return t0 }, log: zap.NewNop()}

	assert.Error(t, s.handle([]byte(`not json`)))
	assert.Error(t, s.handle([]byte(`{"humidity":40}`)))

	_, err := s.Read()
	assert.ErrorIs(t, err, ErrNoReading)
}
