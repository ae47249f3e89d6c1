package internal

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/kernel"
	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
	"github.com/sweeney/fancoil-controller/internal/mqtt"
	"github.com/sweeney/fancoil-controller/internal/panel"
	"github.com/sweeney/fancoil-controller/internal/relay"
	"github.com/sweeney/fancoil-controller/internal/sensor"
	"github.com/sweeney/fancoil-controller/internal/status"
	"github.com/sweeney/fancoil-controller/internal/store"
)

var start = time.Date(2026, 7, 2, 14, 0, 0, 0, time.UTC)

// rig is the controller core on a real SQLite file with fake hardware.
type rig struct {
	inbox   chan message.Message
	db      *store.SQLite
	relay   *relay.Fake
	pub     *mqtt.FakePublisher
	panel   *panel.Panel
	tracker *status.Tracker
	done    chan struct{}
}

func newRig(t *testing.T, path string, target float64, speed int) *rig {
	t.Helper()
	db, err := store.OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := &rig{
		inbox:   make(chan message.Message, kernel.InboxSize),
		db:      db,
		relay:   relay.NewFake(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(start, status.Config{}),
		done:    make(chan struct{}),
	}
	r.panel = panel.New(target, speed, r.inbox)
	orch := kernel.New(r.inbox, kernel.Config{
		Mode:          logic.ModeCooling,
		Offset:        2,
		ReachedMargin: 2,
		BurnIn:        time.Hour,
		StartedAt:     start,
	}, kernel.Deps{
		Display:  r.panel,
		Actuator: r.relay,
		Sink:     db,
		Events:   r.pub,
		Tracker:  r.tracker,
		Log:      zap.NewNop(),
		Metrics:  metrics.New(),
	})
	go func() {
		defer close(r.done)
		orch.Run(context.Background())
	}()
	return r
}

// sample pushes one raw Celsius reading through a sampler.
func (r *rig) sample(t *testing.T, celsius float64) {
	t.Helper()
	src := sensor.NewFakeSource(logic.Sample{Time: start, Temperature: celsius, Pressure: 1013, Humidity: 45})
	s := sensor.NewSampler(src, r.inbox, sensor.SamplerConfig{OffsetC: -1.9, Fahrenheit: true}, zap.NewNop(), metrics.New())
	require.NoError(t, s.SampleOnce(context.Background()))
}

func (r *rig) submit(t *testing.T, action message.Action, value any) message.Params {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := message.Submit(ctx, r.inbox, action, value)
	require.NoError(t, err)
	return p
}

func (r *rig) shutdown(t *testing.T) {
	t.Helper()
	r.inbox <- message.Shutdown()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestIntegrationFullFlow(t *testing.T) {
	r := newRig(t, filepath.Join(t.TempDir(), "fancoil.db"), 72, 2)

	r.sample(t, 27) // about 77°F, cooling trigger
	state := r.submit(t, message.ActionGetState, nil)
	assert.Equal(t, "COOLING", state["state"])
	assert.Equal(t, true, state["running"])
	assert.Equal(t, 2, r.relay.Current())

	r.submit(t, message.ActionSwitch, "off")
	state = r.submit(t, message.ActionGetState, nil)
	assert.Equal(t, "OFF", state["state"])
	assert.Equal(t, 2, state["speed"], "last non-zero speed is reported")
	assert.Equal(t, 0, r.relay.Current())

	r.shutdown(t)

	ctx := context.Background()
	st, err := r.db.LatestStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatusOff, st.Status)

	u, err := r.db.LatestUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, 72.0, u.TargetTemp)
	assert.Equal(t, 0, u.FanSpeed)

	acts := r.pub.Actuators()
	require.Len(t, acts, 2)
	payload, err := mqtt.FormatPayload(acts[0])
	require.NoError(t, err)
	var p mqtt.Payload
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, mqtt.EventActuatorOn, p.FanCoil.Event)
	assert.Equal(t, 2, p.FanCoil.Speed)
	assert.InDelta(t, 77.18, p.FanCoil.Temperature, 0.01)

	snap := r.tracker.Snapshot()
	assert.Equal(t, status.Counts{Starts: 1, Stops: 1}, snap.Counts)
}

func TestIntegrationNoStartWhenBelowBand(t *testing.T) {
	r := newRig(t, filepath.Join(t.TempDir(), "fancoil.db"), 72, 1)

	r.sample(t, 20) // about 64.6°F
	r.shutdown(t)

	assert.Equal(t, []string{"off"}, r.relay.History(), "only the shutdown all-off")
	assert.Empty(t, r.pub.Actuators())
}

func TestIntegrationPublishFailureDoesNotCrash(t *testing.T) {
	r := newRig(t, filepath.Join(t.TempDir(), "fancoil.db"), 72, 1)
	r.pub.PublishError = errors.New("broker down")

	r.sample(t, 27)
	state := r.submit(t, message.ActionGetState, nil)
	r.shutdown(t)

	assert.Equal(t, true, state["running"])
	assert.Equal(t, []string{"speed:1", "off"}, r.relay.History())
	assert.Empty(t, r.pub.Actuators())
}

func TestIntegrationUserSettingSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fancoil.db")
	first := newRig(t, path, 72, 1)
	first.submit(t, message.ActionSetTemperature, 68.5)
	first.submit(t, message.ActionSetSpeed, 3)
	first.shutdown(t)

	db, err := store.OpenSQLite(path, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()
	u, err := db.LatestUser(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 68.5, u.TargetTemp)
	assert.Equal(t, 3, u.FanSpeed)
}
