package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
)

func TestDirectionName(t *testing.T) {
	tests := []struct {
		deg  float64
		want string
	}{
		{0, "N"},
		{11.24, "N"},
		{11.25, "NNE"},
		{45, "NE"},
		{90, "E"},
		{180, "S"},
		{225, "SW"},
		{300, "WNW"},
		{350, "N"},
		{360, "N"},
		{-90, "W"},
	}
	for _, tt := range tests {
		if got := DirectionName(tt.deg); got != tt.want {
			t.Errorf("DirectionName(%v): got %q, want %q", tt.deg, got, tt.want)
		}
	}
}

const forecastJSON = `{
  "properties": {
    "timeseries": [
      {
        "time": "2026-07-01T09:00:00Z",
        "data": {
          "instant": {"details": {
            "air_pressure_at_sea_level": 1012.4,
            "air_temperature": 27.1,
            "relative_humidity": 64.2,
            "wind_from_direction": 225.0,
            "wind_speed": 3.3
          }},
          "next_1_hours": {
            "summary": {"symbol_code": "partlycloudy_day"},
            "details": {"precipitation_amount": 0.4}
          }
        }
      }
    ]
  }
}`

func TestClientFetch(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/weatherapi/locationforecast/2.0/compact", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(forecastJSON))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, IconBase: "icons/", Latitude: 10.5, Longitude: -66.9, UserAgent: "fancoil-test"})
	s, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fancoil-test", gotUA)
	assert.Equal(t, "lat=10.5000&lon=-66.9000", gotQuery)
	assert.Equal(t, 27.1, s.Temperature)
	assert.Equal(t, 64.2, s.Humidity)
	assert.Equal(t, 1012.4, s.Pressure)
	assert.Equal(t, 11.88, s.WindSpeed)
	assert.Equal(t, "SW", s.WindDirName)
	assert.Equal(t, 225.0, s.WindDirDeg)
	assert.Equal(t, 0.4, s.Precipitation)
	assert.Equal(t, "partlycloudy", s.Condition)
	assert.Equal(t, "partlycloudy_day", s.ConditionCode)
	assert.Equal(t, "icons/partlycloudy_day.png", s.Icon)
	assert.Equal(t, 10.5, s.Latitude)
}

func TestClientRejectsEmptyForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"properties":{"timeseries":[]}}`))
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Fetch(context.Background())
	assert.Error(t, err)
}

func TestClientBreakerOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, BreakerFailures: 3, BreakerOpen: time.Hour})
	for i := 0; i < 3; i++ {
		_, err := c.Fetch(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.Fetch(context.Background())
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
	assert.Equal(t, int32(3), hits.Load(), "open breaker must not reach the server")
}

func newTestPoller(f Fetcher, out chan message.Message) *Poller {
	return NewPoller(f, out, 5, time.Millisecond, zap.NewNop(), metrics.New())
}

func at(minute, second int) time.Time {
	return time.Date(2026, 7, 1, 9, minute, second, 0, time.UTC)
}

func TestPollerFetchesOncePerWindow(t *testing.T) {
	f := &FakeFetcher{Snapshot: Snapshot{Temperature: 20}}
	out := make(chan message.Message, 10)
	p := newTestPoller(f, out)
	ctx := context.Background()

	p.Check(ctx, at(4, 59))
	assert.Equal(t, 0, f.Calls(), "minute 4 is off the grid")

	p.Check(ctx, at(5, 0))
	p.Check(ctx, at(5, 1))
	p.Check(ctx, at(5, 59))
	assert.Equal(t, 1, f.Calls(), "one fetch per window")
	assert.Len(t, out, 1)

	p.Check(ctx, at(6, 0))
	p.Check(ctx, at(10, 0))
	assert.Equal(t, 2, f.Calls(), "next window fetches again")
	assert.Len(t, out, 2)
}

func TestPollerIntervalOneMinute(t *testing.T) {
	f := &FakeFetcher{}
	out := make(chan message.Message, 10)
	p := NewPoller(f, out, 1, time.Millisecond, zap.NewNop(), metrics.New())
	ctx := context.Background()

	p.Check(ctx, at(1, 0))
	p.Check(ctx, at(1, 30))
	p.Check(ctx, at(2, 0))
	assert.Equal(t, 2, f.Calls())
	assert.Len(t, out, 2)
}

func TestPollerRetriesUntilSuccess(t *testing.T) {
	f := &FakeFetcher{Fails: 4, Snapshot: Snapshot{Condition: "rain"}}
	out := make(chan message.Message, 10)
	p := newTestPoller(f, out)

	p.Check(context.Background(), at(15, 0))

	assert.Equal(t, 5, f.Calls())
	require.Len(t, out, 1)
	msg := <-out
	assert.Equal(t, message.KindWeatherUpdate, msg.Kind)
	snap, err := message.Value[Snapshot](msg, message.ParamSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "rain", snap.Condition)

	assert.Equal(t, 4.0, testutil.ToFloat64(p.metrics.WeatherFetches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.WeatherFetches.WithLabelValues("ok")))
}

func TestPollerMissedWindowRetriedNextWindow(t *testing.T) {
	f := &FakeFetcher{Fails: -1}
	out := make(chan message.Message, 10)
	p := newTestPoller(f, out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	p.Check(ctx, at(20, 0))
	cancel()
	assert.Len(t, out, 0)

	f.mu.Lock()
	f.Fails = 0
	f.mu.Unlock()

	p.Check(context.Background(), at(20, 30))
	assert.Len(t, out, 1, "an unfulfilled window is retried on the next tick inside it")
}

func TestPollerCancelStopsRetry(t *testing.T) {
	f := &FakeFetcher{Fails: -1}
	out := make(chan message.Message, 1)
	p := newTestPoller(f, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.FetchNow(ctx) }()

	require.Eventually(t, func() bool { return f.Calls() > 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("FetchNow did not return after cancel")
	}
	assert.Len(t, out, 0)
}

func TestPollerRun(t *testing.T) {
	f := &FakeFetcher{}
	out := make(chan message.Message, 10)
	p := newTestPoller(f, out)

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, tick)
		close(done)
	}()

	tick <- at(0, 0)
	tick <- at(0, 1)
	tick <- at(3, 0)
	cancel()
	<-done

	assert.Equal(t, 1, f.Calls())
}
