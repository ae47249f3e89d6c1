// Package config loads the controller configuration from an optional YAML
// file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/fancoil-controller/internal/relay"
	"github.com/sweeney/fancoil-controller/internal/sensor"
)

// Thermostat modes.
const (
	ModeAuto    = "auto"
	ModeCooling = "cooling"
	ModeHeating = "heating"
)

// Temperature units.
const (
	UnitsFahrenheit = "fahrenheit"
	UnitsCelsius    = "celsius"
)

// Config is the full controller configuration.
type Config struct {
	Thermostat Thermostat `yaml:"thermostat"`
	Sensor     Sensor     `yaml:"sensor"`
	Weather    Weather    `yaml:"weather"`
	Relay      Relay      `yaml:"relay"`
	Store      Store      `yaml:"store"`
	MQTT       MQTT       `yaml:"mqtt"`
	HTTP       HTTP       `yaml:"http"`
	Log        Log        `yaml:"log"`
}

type Thermostat struct {
	Offset        float64 `yaml:"offset"`
	ReachedMargin float64 `yaml:"reached_margin"`
	Mode          string  `yaml:"mode"`
	DefaultTarget float64 `yaml:"default_target"`
	DefaultSpeed  int     `yaml:"default_speed"`
	Units         string  `yaml:"units"`
}

type Sensor struct {
	Interval    time.Duration `yaml:"interval"`
	BurnIn      time.Duration `yaml:"burn_in"`
	TempOffsetC float64       `yaml:"temp_offset_c"`
	Topic       string        `yaml:"topic"`
	// MaxAge is how old the last bridged reading may be before Read fails.
	MaxAge time.Duration `yaml:"max_age"`
}

type Weather struct {
	Latitude        float64       `yaml:"latitude"`
	Longitude       float64       `yaml:"longitude"`
	IntervalMinutes int           `yaml:"interval_minutes"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	UserAgent       string        `yaml:"user_agent"`
	BaseURL         string        `yaml:"base_url"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
}

type Relay struct {
	Chip      string     `yaml:"chip"`
	Pins      relay.Pins `yaml:"pins"`
	ActiveLow bool       `yaml:"active_low"`
}

type Store struct {
	SQLitePath string `yaml:"sqlite_path"`
	Influx     Influx `yaml:"influx"`
}

// Influx is disabled when URL is empty.
type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type MQTT struct {
	Broker      string        `yaml:"broker"`
	ClientID    string        `yaml:"client_id"`
	TopicPrefix string        `yaml:"topic_prefix"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
}

type HTTP struct {
	Addr  string `yaml:"addr"`
	Token string `yaml:"token"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Thermostat: Thermostat{
			Offset:        2,
			ReachedMargin: 2,
			Mode:          ModeAuto,
			DefaultTarget: 72,
			DefaultSpeed:  1,
			Units:         UnitsFahrenheit,
		},
		Sensor: Sensor{
			Interval:    time.Second,
			BurnIn:      5 * time.Minute,
			TempOffsetC: -1.9,
			Topic:       sensor.DefaultTopic,
			MaxAge:      30 * time.Second,
		},
		Weather: Weather{
			IntervalMinutes: 5,
			RetryDelay:      3 * time.Second,
			UserAgent:       "fancoil-controller/1.0",
			BreakerFailures: 5,
			BreakerOpen:     time.Minute,
		},
		Relay: Relay{
			Chip:      "gpiochip0",
			Pins:      relay.DefaultPins(),
			ActiveLow: true,
		},
		Store: Store{
			SQLitePath: "fancoil.db",
		},
		MQTT: MQTT{
			Broker:      "tcp://192.168.1.200:1883",
			ClientID:    "fancoil-controller",
			TopicPrefix: "energy/fancoil",
			Heartbeat:   15 * time.Minute,
		},
		HTTP: HTTP{
			Addr: ":80",
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Fahrenheit reports whether temperatures are shown in Fahrenheit.
func (c Config) Fahrenheit() bool {
	return c.Thermostat.Units != UnitsCelsius
}

// Validate rejects values the controller cannot run with.
func (c Config) Validate() error {
	var errs []error
	t := c.Thermostat
	if t.DefaultSpeed < 0 || t.DefaultSpeed > relay.MaxSpeed {
		errs = append(errs, fmt.Errorf("thermostat.default_speed %d out of range 0..%d", t.DefaultSpeed, relay.MaxSpeed))
	}
	switch t.Mode {
	case ModeAuto, ModeCooling, ModeHeating:
	default:
		errs = append(errs, fmt.Errorf("thermostat.mode %q: want auto, cooling or heating", t.Mode))
	}
	switch t.Units {
	case UnitsFahrenheit, UnitsCelsius:
	default:
		errs = append(errs, fmt.Errorf("thermostat.units %q: want fahrenheit or celsius", t.Units))
	}
	if c.Sensor.Interval <= 0 {
		errs = append(errs, errors.New("sensor.interval must be positive"))
	}
	if c.Sensor.BurnIn < 0 {
		errs = append(errs, errors.New("sensor.burn_in must not be negative"))
	}
	w := c.Weather
	if w.IntervalMinutes <= 0 || 60%w.IntervalMinutes != 0 {
		errs = append(errs, fmt.Errorf("weather.interval_minutes %d must be positive and divide 60", w.IntervalMinutes))
	}
	if w.RetryDelay <= 0 {
		errs = append(errs, errors.New("weather.retry_delay must be positive"))
	}
	if w.Latitude < -90 || w.Latitude > 90 || w.Longitude < -180 || w.Longitude > 180 {
		errs = append(errs, fmt.Errorf("weather position %.4f,%.4f out of range", w.Latitude, w.Longitude))
	}
	if c.Store.SQLitePath == "" {
		errs = append(errs, errors.New("store.sqlite_path is required"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, errors.New("mqtt.heartbeat must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want json or console", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Flags holds the command-line overrides.
type Flags struct {
	ConfigPath string
	PrintState bool

	broker    *string
	httpAddr  *string
	token     *string
	dbPath    *string
	logLevel  *string
	logFormat *string
	heartbeat *time.Duration

	fs *pflag.FlagSet
}

// NewFlags registers the controller flags on fs.
func NewFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to YAML config file")
	fs.BoolVar(&f.PrintState, "print-state", false, "print persisted setting and relay state, then exit")
	f.broker = fs.String("broker", "", "MQTT broker address")
	f.httpAddr = fs.String("http", "", "HTTP address (\"off\" disables)")
	f.token = fs.String("token", "", "remote command access token")
	f.dbPath = fs.String("db", "", "SQLite database path")
	f.logLevel = fs.String("log-level", "", "log level (debug, info, warn, error)")
	f.logFormat = fs.String("log-format", "", "log format (json, console)")
	f.heartbeat = fs.Duration("heartbeat", 0, "heartbeat interval (0 disables)")
	return f
}

// Apply copies every flag the user set onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.fs.Changed("broker") {
		cfg.MQTT.Broker = *f.broker
	}
	if f.fs.Changed("http") {
		cfg.HTTP.Addr = *f.httpAddr
		if cfg.HTTP.Addr == "off" {
			cfg.HTTP.Addr = ""
		}
	}
	if f.fs.Changed("token") {
		cfg.HTTP.Token = *f.token
	}
	if f.fs.Changed("db") {
		cfg.Store.SQLitePath = *f.dbPath
	}
	if f.fs.Changed("log-level") {
		cfg.Log.Level = *f.logLevel
	}
	if f.fs.Changed("log-format") {
		cfg.Log.Format = *f.logFormat
	}
	if f.fs.Changed("heartbeat") {
		cfg.MQTT.Heartbeat = *f.heartbeat
	}
}

// Parse parses args, loads the config file and applies the overrides.
func Parse(name string, args []string) (Config, *Flags, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	f := NewFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return Config{}, nil, err
	}
	f.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, f, nil
}
