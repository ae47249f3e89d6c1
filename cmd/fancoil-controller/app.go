package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/config"
	"github.com/sweeney/fancoil-controller/internal/kernel"
	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/message"
	"github.com/sweeney/fancoil-controller/internal/metrics"
	"github.com/sweeney/fancoil-controller/internal/mqtt"
	"github.com/sweeney/fancoil-controller/internal/panel"
	"github.com/sweeney/fancoil-controller/internal/relay"
	"github.com/sweeney/fancoil-controller/internal/sensor"
	"github.com/sweeney/fancoil-controller/internal/shutdown"
	"github.com/sweeney/fancoil-controller/internal/status"
	"github.com/sweeney/fancoil-controller/internal/store"
	"github.com/sweeney/fancoil-controller/internal/weather"
	"github.com/sweeney/fancoil-controller/internal/web"
)

// bus is the MQTT side of the controller.
type bus interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// commandSource delivers command-topic payloads.
type commandSource interface {
	Subscribe(topic string, h func([]byte))
}

// app is the assembled controller. run builds it from real hardware and
// network clients; tests build it from fakes.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	sink     store.Sink
	history  store.History
	actuator relay.Actuator
	pub      bus
	commands commandSource // nil disables MQTT commands
	source   sensor.Source
	fetcher  weather.Fetcher
	now      func() time.Time
}

// ticks drive the periodic workers. A nil heartbeat disables it.
type ticks struct {
	sensor    <-chan time.Time
	weather   <-chan time.Time
	heartbeat <-chan time.Time
}

// mode resolves the configured operating mode.
func (a *app) mode() logic.Mode {
	switch a.cfg.Thermostat.Mode {
	case config.ModeCooling:
		return logic.ModeCooling
	case config.ModeHeating:
		return logic.ModeHeating
	default:
		return logic.ModeForMonth(a.now().Month())
	}
}

// restoreSetting returns the last persisted user setting. With none on
// record the defaults are returned and recorded as the first row.
func (a *app) restoreSetting(ctx context.Context) (float64, int) {
	target, speed := a.cfg.Thermostat.DefaultTarget, a.cfg.Thermostat.DefaultSpeed
	u, err := a.history.LatestUser(ctx)
	switch {
	case err == nil:
		a.log.Info("restored user setting", zap.Float64("target", u.TargetTemp), zap.Int("speed", u.FanSpeed))
		return u.TargetTemp, u.FanSpeed
	case errors.Is(err, store.ErrNotFound):
		rec := store.UserRecord{Time: a.now(), TargetTemp: target, FanSpeed: speed}
		if err := a.sink.RecordUser(ctx, rec.Time, rec); err != nil {
			a.log.Warn("recording default setting", zap.Error(err))
		}
	default:
		a.log.Warn("reading user setting, using defaults", zap.Error(err))
	}
	return target, speed
}

func (a *app) statusConfig() status.Config {
	return status.Config{
		SensorIntervalMs: a.cfg.Sensor.Interval.Milliseconds(),
		WeatherInterval:  a.cfg.Weather.IntervalMinutes,
		HeartbeatMs:      a.cfg.MQTT.Heartbeat.Milliseconds(),
		Offset:           a.cfg.Thermostat.Offset,
		ReachedMargin:    a.cfg.Thermostat.ReachedMargin,
		Units:            a.cfg.Thermostat.Units,
		Broker:           a.cfg.MQTT.Broker,
		HTTPAddr:         a.cfg.HTTP.Addr,
	}
}

// publishSystem sends a retained-or-not system event carrying the
// current status snapshot.
func (a *app) publishSystem(tracker *status.Tracker, event, reason string, retained bool) {
	tracker.SetMQTTConnected(a.pub.IsConnected())
	snap := tracker.Snapshot()
	err := a.pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		a.log.Warn("publishing system event", zap.String("event", event), zap.Error(err))
		return
	}
	a.log.Debug("published system event", zap.String("event", event))
}

// serve runs the controller until a signal arrives on sig.
func (a *app) serve(sig <-chan os.Signal, t ticks) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbox := make(chan message.Message, kernel.InboxSize)
	startedAt := a.now()
	mode := a.mode()

	if err := a.actuator.AllOff(); err != nil {
		a.log.Warn("releasing relays at startup", zap.Error(err))
	}

	target, speed := a.restoreSetting(ctx)
	pn := panel.New(target, speed, inbox)
	tracker := status.NewTracker(startedAt, a.statusConfig())

	orch := kernel.New(inbox, kernel.Config{
		Mode:          mode,
		Offset:        a.cfg.Thermostat.Offset,
		ReachedMargin: a.cfg.Thermostat.ReachedMargin,
		BurnIn:        a.cfg.Sensor.BurnIn,
		StartedAt:     startedAt,
	}, kernel.Deps{
		Display:  pn,
		Actuator: a.actuator,
		Sink:     a.sink,
		Events:   a.pub,
		Tracker:  tracker,
		Log:      a.log.Named("kernel"),
		Metrics:  a.metrics,
	})

	if err := a.sink.RecordStatus(ctx, startedAt, store.StatusOn); err != nil {
		a.log.Warn("recording startup status", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := orch.Run(ctx); err != nil {
			a.log.Error("orchestrator exited", zap.Error(err))
		}
	}()

	a.publishSystem(tracker, "STARTUP", "", true)

	var wg sync.WaitGroup
	if a.commands != nil {
		topic := mqtt.TopicsFor(a.cfg.MQTT.TopicPrefix).Command
		l := mqtt.NewListener(a.cfg.HTTP.Token, inbox, a.pub, 0, a.log.Named("command"), a.metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Run(ctx)
		}()
		a.commands.Subscribe(topic, func(payload []byte) { l.Enqueue(payload) })
		a.log.Info("listening for remote commands", zap.String("topic", topic))
	}

	sampler := sensor.NewSampler(a.source, inbox, sensor.SamplerConfig{
		OffsetC:    a.cfg.Sensor.TempOffsetC,
		Fahrenheit: a.cfg.Fahrenheit(),
	}, a.log.Named("sampler"), a.metrics)
	poller := weather.NewPoller(a.fetcher, inbox, a.cfg.Weather.IntervalMinutes, a.cfg.Weather.RetryDelay, a.log.Named("weather"), a.metrics)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sampler.Run(ctx, t.sensor)
	}()
	go func() {
		defer wg.Done()
		if err := poller.FetchNow(ctx); err != nil {
			return
		}
		poller.Run(ctx, t.weather)
	}()

	var srv *web.Server
	if addr := a.cfg.HTTP.Addr; addr != "" {
		srv = web.New(web.Options{Addr: addr, Token: a.cfg.HTTP.Token}, tracker, pn, inbox, a.log.Named("web"), a.metrics)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server", zap.Error(err))
			}
		}()
		a.log.Info("http server listening", zap.String("addr", addr))
	}

	a.log.Info("started",
		zap.String("mode", string(mode)),
		zap.Float64("target", target),
		zap.Int("speed", speed),
		zap.String("broker", a.cfg.MQTT.Broker),
		zap.Duration("heartbeat", a.cfg.MQTT.Heartbeat))

	for {
		select {
		case s := <-sig:
			reason := shutdown.SignalName(s)
			a.log.Info("received signal", zap.String("signal", reason))

			if srv != nil {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				srv.Shutdown(sctx)
				scancel()
			}
			err := shutdown.New(cancel, inbox, done, a.actuator, shutdown.DefaultTimeout, a.log.Named("shutdown")).Shutdown(reason)
			wg.Wait()
			a.publishSystem(tracker, "SHUTDOWN", reason, true)
			return err

		case <-t.heartbeat:
			a.publishSystem(tracker, "HEARTBEAT", "", false)
		}
	}
}
