// Package kernel is the single consumer of the inbound message channel.
// The Orchestrator owns the control state and the gas baseline; every
// other goroutine talks to it by sending messages.
package kernel

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
	"github.com/sweeney/fancoil-controller/internal/mqtt"
	"github.com/sweeney/fancoil-controller/internal/relay"
	"github.com/sweeney/fancoil-controller/internal/sensor"
	"github.com/sweeney/fancoil-controller/internal/status"
	"github.com/sweeney/fancoil-controller/internal/store"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// InboxSize is the capacity of the inbound channel.
const InboxSize = 64

// DefaultIOTimeout bounds the sink writes made while handling one message.
const DefaultIOTimeout = 5 * time.Second

// Display is the user-setting store and screen.
type Display interface {
	Setting() logic.UserSetting
	TargetTemp() float64
	FanSpeed() int
	IsOff() bool
	LastNonzeroSpeed() int
	SetTargetTemp(t float64)
	SetFanSpeed(s int) error
	ShowIndoor(r logic.Reading)
	ShowOutdoor(s weather.Snapshot)
	ShowRunning(running bool, mode logic.Mode)
}

// EventPublisher announces actuator transitions.
type EventPublisher interface {
	PublishActuator(event mqtt.ActuatorEvent) error
}

// Config holds the control parameters.
type Config struct {
	Mode          logic.Mode
	Offset        float64
	ReachedMargin float64
	BurnIn        time.Duration
	StartedAt     time.Time
	IOTimeout     time.Duration
}

// Deps are the collaborators. Events and Tracker may be nil.
type Deps struct {
	Display  Display
	Actuator relay.Actuator
	Sink     store.Sink
	Events   EventPublisher
	Tracker  *status.Tracker
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// Orchestrator dispatches messages one at a time in arrival order.
// Its fields are touched only by the goroutine running Run.
type Orchestrator struct {
	in  <-chan message.Message
	dep Deps

	thermostat *logic.Thermostat
	primer     *logic.Primer
	state      logic.ControlState

	reading    logic.Reading
	hasReading bool

	ioTimeout time.Duration
	now       func() time.Time
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// New creates an Orchestrator reading from in. The initial running state
// is taken from the actuator.
func New(in <-chan message.Message, cfg Config, dep Deps) *Orchestrator {
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultIOTimeout
	}
	o := &Orchestrator{
		in:         in,
		dep:        dep,
		thermostat: logic.NewThermostat(cfg.Offset, cfg.ReachedMargin),
		primer:     logic.NewPrimer(cfg.BurnIn, cfg.StartedAt),
		state:      logic.ControlState{Mode: cfg.Mode},
		ioTimeout:  cfg.IOTimeout,
		now:        time.Now,
		log:        dep.Log,
		metrics:    dep.Metrics,
	}
	if running, err := dep.Actuator.IsRunning(); err != nil {
		o.log.Warn("reading actuator state", zap.Error(err))
	} else {
		o.state.ActuatorRunning = running
	}
	o.publishControl()
	return o
}

// State returns the current control state. Only safe to call from the
// goroutine running Run, or after Run has returned.
func (o *Orchestrator) State() logic.ControlState {
	return o.state
}

// Run dispatches messages until a shutdown message is handled or the
// inbound channel is closed. Cancelling ctx does not stop the loop; the
// shutdown message does. I/O made while handling a message is bounded by
// the I/O timeout and outlives ctx so the final writes still happen.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("orchestrator started", zap.String("mode", string(o.state.Mode)))
	for m := range o.in {
		if o.Dispatch(ctx, m) {
			return nil
		}
	}
	return fmt.Errorf("inbound channel closed without shutdown")
}

// Dispatch handles one message and reports whether the loop must stop.
// A panicking handler is logged and the message dropped.
func (o *Orchestrator) Dispatch(ctx context.Context, m message.Message) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("handler panic", zap.String("kind", string(m.Kind)), zap.Any("panic", r), zap.Stack("stack"))
			o.drop("panic")
			stop = false
		}
	}()
	o.metrics.MessagesTotal.WithLabelValues(string(m.Kind)).Inc()

	switch m.Kind {
	case message.KindSensorUpdate:
		o.handleSensor(ctx, m)
	case message.KindWeatherUpdate:
		o.handleWeather(ctx, m)
	case message.KindDisplayUpdate:
		o.userChanged(ctx)
	case message.KindRemoteCommand:
		o.handleRemote(ctx, m)
	case message.KindAppReply:
		o.log.Warn("app-reply sent to orchestrator", zap.String("id", m.ID))
		o.drop("unexpected-kind")
	case message.KindShutdown:
		o.handleShutdown(ctx)
		return true
	default:
		o.log.Warn("unknown message kind", zap.String("kind", string(m.Kind)))
		o.drop("unknown-kind")
	}
	return false
}

func (o *Orchestrator) drop(reason string) {
	o.metrics.DroppedTotal.WithLabelValues(reason).Inc()
}

func (o *Orchestrator) ioContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.ioTimeout)
}

func (o *Orchestrator) record(name string, err error) {
	if err != nil {
		o.log.Warn("record failed", zap.String("record", name), zap.Error(err))
		o.metrics.SinkErrors.WithLabelValues(name).Inc()
	}
}

func (o *Orchestrator) handleSensor(ctx context.Context, m message.Message) {
	s, err := message.Value[logic.Sample](m, message.ParamSample)
	if err != nil {
		o.log.Warn("bad sensor update", zap.Error(err))
		o.drop("bad-param")
		return
	}
	if s.Time.IsZero() {
		s.Time = o.now()
	}

	o.primer.Ingest(s)
	ready := o.primer.IsReady()
	o.metrics.BaselineReady.Set(metrics.Bool(ready))

	r := logic.Reading{
		Time:          s.Time,
		Temperature:   s.Temperature,
		Pressure:      s.Pressure,
		Humidity:      s.Humidity,
		GasResistance: s.GasResistance,
		AirQuality:    o.primer.EstimateAirQuality(),
	}
	if o.hasReading && !changed(o.reading, r) {
		return
	}
	o.reading = r
	o.hasReading = true

	o.metrics.IndoorTemperature.Set(r.Temperature)
	if r.AirQuality.Known {
		o.metrics.AirQuality.Set(float64(r.AirQuality.Score))
	} else {
		o.metrics.AirQuality.Set(-1)
	}
	o.dep.Display.ShowIndoor(r)
	if o.dep.Tracker != nil {
		o.dep.Tracker.SetIndoor(r, ready)
	}

	o.evaluate(ctx)

	ioCtx, cancel := o.ioContext(ctx)
	defer cancel()
	o.record("sensor", o.dep.Sink.RecordSensor(ioCtx, r.Time, r, o.state.ActuatorRunning))
}

// changed reports whether b differs from a at display resolution.
func changed(a, b logic.Reading) bool {
	return sensor.HalfRound(a.Temperature) != sensor.HalfRound(b.Temperature) ||
		int(a.Pressure) != int(b.Pressure) ||
		int(a.Humidity) != int(b.Humidity) ||
		a.AirQuality != b.AirQuality
}

func (o *Orchestrator) handleWeather(ctx context.Context, m message.Message) {
	w, err := message.Value[weather.Snapshot](m, message.ParamSnapshot)
	if err != nil {
		o.log.Warn("bad weather update", zap.Error(err))
		o.drop("bad-param")
		return
	}
	if w.Time.IsZero() {
		w.Time = o.now()
	}
	o.dep.Display.ShowOutdoor(w)
	if o.dep.Tracker != nil {
		o.dep.Tracker.SetOutdoor(w)
	}

	ioCtx, cancel := o.ioContext(ctx)
	defer cancel()
	o.record("weather", o.dep.Sink.RecordWeather(ioCtx, w.Time, w))
}

// userChanged re-evaluates after the user setting changed, records the
// setting and, when the actuator changed state, a sensor snapshot.
func (o *Orchestrator) userChanged(ctx context.Context) {
	before := o.state.ActuatorRunning
	o.evaluate(ctx)

	ts := o.now()
	ioCtx, cancel := o.ioContext(ctx)
	defer cancel()
	o.record("user", o.dep.Sink.RecordUser(ioCtx, ts, store.UserRecord{
		TargetTemp: o.dep.Display.TargetTemp(),
		FanSpeed:   o.dep.Display.FanSpeed(),
	}))
	if o.hasReading && before != o.state.ActuatorRunning {
		o.record("sensor", o.dep.Sink.RecordSensor(ioCtx, ts, o.reading, o.state.ActuatorRunning))
	}
}

func (o *Orchestrator) handleRemote(ctx context.Context, m message.Message) {
	var err error
	switch m.Action {
	case message.ActionSwitch:
		var v string
		if v, err = m.String(message.ParamValue); err != nil {
			break
		}
		switch v {
		case message.SwitchOn:
			err = o.dep.Display.SetFanSpeed(o.dep.Display.LastNonzeroSpeed())
		case message.SwitchOff:
			err = o.dep.Display.SetFanSpeed(0)
		default:
			err = fmt.Errorf("%w: switch %q", message.ErrBadParam, v)
		}
	case message.ActionSetTemperature:
		var t float64
		if t, err = m.Float(message.ParamValue); err == nil {
			o.dep.Display.SetTargetTemp(t)
		}
	case message.ActionSetSpeed:
		var s int
		if s, err = m.Int(message.ParamValue); err == nil {
			err = o.dep.Display.SetFanSpeed(s)
		}
	case message.ActionGetState:
		o.reply(m, message.Reply(m, o.stateParams()))
		return
	default:
		err = fmt.Errorf("%w: %q", message.ErrUnknownAction, m.Action)
	}

	if err != nil {
		o.log.Warn("rejected remote command", zap.String("action", string(m.Action)), zap.Error(err))
		o.drop("bad-param")
		o.reply(m, message.ErrorReply(m, err))
		return
	}
	o.userChanged(ctx)
	o.reply(m, message.Reply(m, message.Params{"status": "ok"}))
}

// stateParams is the get_state reply: state is OFF when the user switched
// the unit off, speed is the last non-zero speed, cur_temp is nil before
// the first reading.
func (o *Orchestrator) stateParams() message.Params {
	state := string(o.state.Mode)
	if o.dep.Display.IsOff() {
		state = "OFF"
	}
	var cur any
	if o.hasReading {
		cur = math.Round(o.reading.Temperature)
	}
	return message.Params{
		"state":    state,
		"mode":     string(o.state.Mode),
		"running":  o.state.ActuatorRunning,
		"speed":    o.dep.Display.LastNonzeroSpeed(),
		"cur_temp": cur,
		"usr_temp": o.dep.Display.TargetTemp(),
	}
}

// reply never blocks: ReplyTo is buffered and read by exactly one waiter.
func (o *Orchestrator) reply(req, r message.Message) {
	if req.ReplyTo == nil {
		return
	}
	select {
	case req.ReplyTo <- r:
	default:
		o.log.Warn("reply channel full, dropping reply", zap.String("id", req.ID))
		o.drop("reply-full")
	}
}

// evaluate runs the thermostat against the latest reading and applies the
// resulting command. A failed command leaves the control state as it was.
func (o *Orchestrator) evaluate(ctx context.Context) {
	if !o.hasReading {
		o.publishControl()
		return
	}
	next, cmd := o.thermostat.Evaluate(o.reading.Temperature, o.dep.Display.Setting(), o.state)

	var err error
	switch cmd.Type {
	case logic.CommandNone:
	case logic.CommandStart:
		err = o.dep.Actuator.SetSpeed(cmd.Speed)
	case logic.CommandAllOff:
		err = o.dep.Actuator.AllOff()
	}
	if cmd.Type != logic.CommandNone {
		result := "ok"
		if err != nil {
			result = "error"
		}
		o.metrics.ActuatorCommands.WithLabelValues(string(cmd.Type), result).Inc()
	}
	if err != nil {
		o.log.Error("actuator command failed", zap.String("command", string(cmd.Type)), zap.Int("speed", cmd.Speed), zap.Error(err))
		o.publishControl()
		return
	}

	was := o.state.ActuatorRunning
	o.state = next
	if cmd.Type != logic.CommandNone {
		o.log.Info("actuator command",
			zap.String("command", string(cmd.Type)),
			zap.Int("speed", cmd.Speed),
			zap.Float64("temperature", o.reading.Temperature),
			zap.Float64("target", o.dep.Display.TargetTemp()))
	}
	if was != o.state.ActuatorRunning {
		o.publishActuator(cmd.Speed)
	}
	o.publishControl()
}

func (o *Orchestrator) publishActuator(speed int) {
	if o.dep.Events == nil {
		return
	}
	err := o.dep.Events.PublishActuator(mqtt.ActuatorEvent{
		Timestamp:   o.now(),
		Running:     o.state.ActuatorRunning,
		Speed:       speed,
		Mode:        o.state.Mode,
		Temperature: o.reading.Temperature,
		Target:      o.dep.Display.TargetTemp(),
	})
	if err != nil {
		o.log.Warn("publish actuator event", zap.Error(err))
	}
}

// publishControl pushes the control state to the screen, status tracker
// and gauges.
func (o *Orchestrator) publishControl() {
	o.metrics.ActuatorRunning.Set(metrics.Bool(o.state.ActuatorRunning))
	o.dep.Display.ShowRunning(o.state.ActuatorRunning, o.state.Mode)
	if o.dep.Tracker != nil {
		o.dep.Tracker.Update(status.Control{
			Mode:             o.state.Mode,
			Running:          o.state.ActuatorRunning,
			UserOff:          o.dep.Display.IsOff(),
			TargetTemp:       o.dep.Display.TargetTemp(),
			FanSpeed:         o.dep.Display.FanSpeed(),
			LastNonzeroSpeed: o.dep.Display.LastNonzeroSpeed(),
		})
	}
}

// handleShutdown drives the actuator off unconditionally and writes the
// final OFF status record.
func (o *Orchestrator) handleShutdown(ctx context.Context) {
	o.log.Info("shutdown requested")
	err := o.dep.Actuator.AllOff()
	result := "ok"
	if err != nil {
		result = "error"
		o.log.Error("actuator all-off at shutdown failed", zap.Error(err))
	}
	o.metrics.ActuatorCommands.WithLabelValues(string(logic.CommandAllOff), result).Inc()

	was := o.state.ActuatorRunning
	o.state.ActuatorRunning = false
	if was {
		o.publishActuator(0)
	}
	o.publishControl()

	ioCtx, cancel := o.ioContext(ctx)
	defer cancel()
	o.record("status", o.dep.Sink.RecordStatus(ioCtx, o.now(), store.StatusOff))
	o.log.Info("orchestrator stopped")
}
