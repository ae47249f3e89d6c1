// Command fancoil-controller runs the fan coil thermostat: it samples the
// indoor sensor, polls outdoor weather, drives the relay board and takes
// remote commands over HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/fancoil-controller/internal/config"
	"github.com/sweeney/fancoil-controller/internal/logging"
	"github.com/sweeney/fancoil-controller/internal/metrics"
	"github.com/sweeney/fancoil-controller/internal/mqtt"
	"github.com/sweeney/fancoil-controller/internal/relay"
	"github.com/sweeney/fancoil-controller/internal/sensor"
	"github.com/sweeney/fancoil-controller/internal/shutdown"
	"github.com/sweeney/fancoil-controller/internal/store"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// weatherCheckEvery is how often the poller looks at the wall clock for
// a new grid window.
const weatherCheckEvery = 10 * time.Second

func main() {
	cfg, flags, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fancoil-controller: %v\n", err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fancoil-controller: %v\n", err)
		os.Exit(2)
	}

	if flags.PrintState {
		err = runPrintState(cfg, log)
	} else {
		err = run(cfg, log)
	}
	if err != nil {
		log.Error("fatal", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run(cfg config.Config, log *zap.Logger) error {
	m := metrics.New()

	db, err := store.OpenSQLite(cfg.Store.SQLitePath, log.Named("sqlite"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	sinks := store.Multi{db}
	if in := cfg.Store.Influx; in.URL != "" {
		sinks = append(sinks, store.NewInflux(store.InfluxConfig{
			URL:    in.URL,
			Token:  in.Token,
			Org:    in.Org,
			Bucket: in.Bucket,
			Device: cfg.MQTT.ClientID,
		}))
		log.Info("mirroring records to influxdb", zap.String("url", in.URL), zap.String("bucket", in.Bucket))
	}
	defer sinks.Close()

	board, err := relay.NewBoard(cfg.Relay.Chip, cfg.Relay.Pins, cfg.Relay.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer board.Close()

	pub, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Topics:   mqtt.TopicsFor(cfg.MQTT.TopicPrefix),
	}, log.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer pub.Close()

	srcOpts := paho.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID + "-sensor").
		SetAutoReconnect(true).
		SetConnectRetry(true)
	src := sensor.NewMQTTSource(srcOpts, cfg.Sensor.Topic, cfg.Sensor.MaxAge, log.Named("sensor"))
	defer src.Close()

	client := weather.NewClient(weather.ClientConfig{
		BaseURL:         cfg.Weather.BaseURL,
		Latitude:        cfg.Weather.Latitude,
		Longitude:       cfg.Weather.Longitude,
		UserAgent:       cfg.Weather.UserAgent,
		BreakerFailures: cfg.Weather.BreakerFailures,
		BreakerOpen:     cfg.Weather.BreakerOpen,
	})

	sig, stop := shutdown.Signals()
	defer stop()

	sensorTicker := time.NewTicker(cfg.Sensor.Interval)
	defer sensorTicker.Stop()
	weatherTicker := time.NewTicker(weatherCheckEvery)
	defer weatherTicker.Stop()
	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		t := time.NewTicker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		sink:     sinks,
		history:  db,
		actuator: board,
		pub:      pub,
		commands: pub,
		source:   src,
		fetcher:  client,
		now:      time.Now,
	}
	return a.serve(sig, ticks{
		sensor:    sensorTicker.C,
		weather:   weatherTicker.C,
		heartbeat: heartbeat,
	})
}

func runPrintState(cfg config.Config, log *zap.Logger) error {
	db, err := store.OpenSQLite(cfg.Store.SQLitePath, log.Named("sqlite"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	var act relay.Actuator
	board, err := relay.NewBoard(cfg.Relay.Chip, cfg.Relay.Pins, cfg.Relay.ActiveLow)
	if err != nil {
		log.Debug("relay board unavailable", zap.Error(err))
	} else {
		defer board.Close()
		act = board
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return printState(ctx, db, act, os.Stdout)
}

// printState writes the persisted setting, the last status record and
// the relay state. act may be nil when the board is held elsewhere.
func printState(ctx context.Context, h store.History, act relay.Actuator, w io.Writer) error {
	u, err := h.LatestUser(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(w, "setting: none recorded")
	case err != nil:
		return fmt.Errorf("read setting: %w", err)
	default:
		fmt.Fprintf(w, "setting: target=%.1f speed=%d (%s)\n", u.TargetTemp, u.FanSpeed, u.Time.UTC().Format(time.RFC3339))
	}

	s, err := h.LatestStatus(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintln(w, "status: none recorded")
	case err != nil:
		return fmt.Errorf("read status: %w", err)
	default:
		fmt.Fprintf(w, "status: %s (%s)\n", s.Status, s.Time.UTC().Format(time.RFC3339))
	}

	if act == nil {
		fmt.Fprintln(w, "relays: unavailable (in use by a running controller?)")
		return nil
	}
	running, err := act.IsRunning()
	if err != nil {
		return fmt.Errorf("read relays: %w", err)
	}
	fmt.Fprintf(w, "relays: %s\n", onOff(running))
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
