// Package logic contains the pure control logic of the fan coil controller:
// gas baseline priming, air-quality scoring and the hysteresis thermostat.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strconv"
	"time"
)

// Mode is the seasonal operating direction of the coil.
type Mode string

const (
	ModeCooling Mode = "COOLING"
	ModeHeating Mode = "HEATING"
)

// ModeForMonth returns COOLING from April through September and HEATING
// for the remaining months. The coil's hot or cold water comes from a
// central plant, so the season is the only signal available.
func ModeForMonth(m time.Month) Mode {
	if m >= time.April && m <= time.September {
		return ModeCooling
	}
	return ModeHeating
}

// sign is +1 when cooling (act when warmer than target) and -1 when heating.
func (m Mode) sign() float64 {
	if m == ModeCooling {
		return 1
	}
	return -1
}

// ControlState is owned by the orchestrator goroutine.
// Mode never changes during a run.
type ControlState struct {
	Mode            Mode
	TargetReached   bool
	ActuatorRunning bool
}

// UserSetting is the user's requested target and fan speed as seen by
// the thermostat on a single evaluation.
type UserSetting struct {
	TargetTemp       float64
	FanSpeed         int // 0 (off) to 3
	LastNonzeroSpeed int
	// SpeedChanged reports that the user picked a new speed since the
	// previous evaluation.
	SpeedChanged bool
}

// Off reports whether the user explicitly turned the unit off.
func (u UserSetting) Off() bool {
	return u.FanSpeed == 0
}

// CommandType is an instruction for the relay actuator.
type CommandType string

const (
	CommandNone   CommandType = ""
	CommandStart  CommandType = "START"
	CommandAllOff CommandType = "ALL_OFF"
)

// Command is the actuator instruction produced by an evaluation.
type Command struct {
	Type  CommandType
	Speed int // only meaningful for CommandStart
}

// Sample is a single raw reading from the environmental sensor.
// Temperature is already converted to display units by the sampler.
type Sample struct {
	Time          time.Time
	Temperature   float64
	Pressure      float64 // hPa
	Humidity      float64 // %RH
	GasResistance float64 // Ohms
	// HeatStable reports that the gas heater reached its target
	// temperature for this sample, so GasResistance is trustworthy.
	HeatStable bool
}

// AirQuality is a 0-100 score (higher is better) or unknown.
// The zero value is unknown.
type AirQuality struct {
	Score int
	Known bool
}

// UnknownAirQuality is the explicit marker used before the gas baseline is ready.
var UnknownAirQuality = AirQuality{}

// String returns the score, or "-" when unknown.
func (a AirQuality) String() string {
	if !a.Known {
		return "-"
	}
	return strconv.Itoa(a.Score)
}

// MarshalJSON encodes an unknown score as null.
func (a AirQuality) MarshalJSON() ([]byte, error) {
	if !a.Known {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(a.Score)), nil
}

// UnmarshalJSON decodes null as unknown.
func (a *AirQuality) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = UnknownAirQuality
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("air quality %s: %w", data, err)
	}
	*a = AirQuality{Score: n, Known: true}
	return nil
}

// Reading is the most recent combined sensor reading.
type Reading struct {
	Time          time.Time  `json:"time"`
	Temperature   float64    `json:"temperature"`
	Pressure      float64    `json:"pressure"`
	Humidity      float64    `json:"humidity"`
	GasResistance float64    `json:"gas_resistance"`
	AirQuality    AirQuality `json:"air_quality"`
}
