// Package status keeps a thread-safe view of the controller for the status
// page and MQTT system events. The orchestrator writes it; everyone else
// reads snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// Config is the part of the configuration shown on the status page.
type Config struct {
	SensorIntervalMs int64
	WeatherInterval  int // minutes
	HeartbeatMs      int64
	Offset           float64
	ReachedMargin    float64
	Units            string
	Broker           string
	HTTPAddr         string
}

// Control is the control-loop state published after each handled message.
type Control struct {
	Mode             logic.Mode
	Running          bool
	UserOff          bool
	TargetTemp       float64
	FanSpeed         int
	LastNonzeroSpeed int
}

// Counts tallies actuator transitions since startup.
type Counts struct {
	Starts int
	Stops  int
}

// Snapshot is a point-in-time copy of controller state.
type Snapshot struct {
	Control       Control
	Indoor        *logic.Reading
	Outdoor       *weather.Snapshot
	BaselineReady bool
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the mutable snapshot behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the control state. A change in Running is counted as a
// start or stop.
func (t *Tracker) Update(c Control) {
	t.mu.Lock()
	if c.Running != t.snap.Control.Running {
		if c.Running {
			t.snap.Counts.Starts++
		} else {
			t.snap.Counts.Stops++
		}
	}
	t.snap.Control = c
	t.mu.Unlock()
}

// SetIndoor records the latest accepted sensor reading.
func (t *Tracker) SetIndoor(r logic.Reading, baselineReady bool) {
	t.mu.Lock()
	t.snap.Indoor = &r
	t.snap.BaselineReady = baselineReady
	t.mu.Unlock()
}

// SetOutdoor records the latest weather snapshot.
func (t *Tracker) SetOutdoor(w weather.Snapshot) {
	t.mu.Lock()
	t.snap.Outdoor = &w
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a copy of the current state with Now set to the time
// of the call. Indoor and Outdoor point at copies.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s.Indoor != nil {
		r := *s.Indoor
		s.Indoor = &r
	}
	if s.Outdoor != nil {
		w := *s.Outdoor
		s.Outdoor = &w
	}
	s.Now = time.Now()
	return s
}
