package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/fancoil-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	State         string       `json:"state"`
	Mode          string       `json:"mode"`
	Running       bool         `json:"running"`
	TargetTemp    float64      `json:"target_temp"`
	FanSpeed      int          `json:"fan_speed"`
	LastSpeed     int          `json:"last_speed"`
	Indoor        *IndoorJSON  `json:"indoor,omitempty"`
	Outdoor       *OutdoorJSON `json:"outdoor,omitempty"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"actuator_counts"`
	Config        ConfigJSON   `json:"config"`
}

// IndoorJSON is the latest sensor reading. AirQuality is null until the
// gas baseline is ready.
type IndoorJSON struct {
	Temperature   float64          `json:"temperature"`
	Pressure      float64          `json:"pressure"`
	Humidity      float64          `json:"humidity"`
	GasResistance float64          `json:"gas_resistance"`
	AirQuality    logic.AirQuality `json:"air_quality"`
	Timestamp     string           `json:"timestamp"`
}

// OutdoorJSON is the latest weather snapshot.
type OutdoorJSON struct {
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDir       string  `json:"wind_dir"`
	Precipitation float64 `json:"precipitation"`
	Condition     string  `json:"condition"`
	Icon          string  `json:"icon,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of actuator counts.
type CountsJSON struct {
	Starts int `json:"starts"`
	Stops  int `json:"stops"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	SensorIntervalMs int64   `json:"sensor_interval_ms"`
	WeatherInterval  int     `json:"weather_interval_minutes"`
	HeartbeatMs      int64   `json:"heartbeat_ms"`
	Offset           float64 `json:"offset"`
	ReachedMargin    float64 `json:"reached_margin"`
	Units            string  `json:"units"`
	Broker           string  `json:"broker"`
	HTTPAddr         string  `json:"http_addr"`
}

// StateName is OFF when the user switched the unit off, otherwise the
// operating mode.
func StateName(c Control) string {
	if c.UserOff {
		return "OFF"
	}
	return modeName(c.Mode)
}

func modeName(m logic.Mode) string {
	if m == "" {
		return "UNKNOWN"
	}
	return string(m)
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Control
	inner := StatusInner{
		State:         StateName(c),
		Mode:          modeName(c.Mode),
		Running:       c.Running,
		TargetTemp:    c.TargetTemp,
		FanSpeed:      c.FanSpeed,
		LastSpeed:     c.LastNonzeroSpeed,
		Ready:         snap.BaselineReady,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        CountsJSON{Starts: snap.Counts.Starts, Stops: snap.Counts.Stops},
		Config: ConfigJSON{
			SensorIntervalMs: snap.Config.SensorIntervalMs,
			WeatherInterval:  snap.Config.WeatherInterval,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Offset:           snap.Config.Offset,
			ReachedMargin:    snap.Config.ReachedMargin,
			Units:            snap.Config.Units,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if r := snap.Indoor; r != nil {
		inner.Indoor = &IndoorJSON{
			Temperature:   r.Temperature,
			Pressure:      r.Pressure,
			Humidity:      r.Humidity,
			GasResistance: r.GasResistance,
			AirQuality:    r.AirQuality,
			Timestamp:     r.Time.UTC().Format(time.RFC3339),
		}
	}
	if w := snap.Outdoor; w != nil {
		inner.Outdoor = &OutdoorJSON{
			Temperature:   w.Temperature,
			Humidity:      w.Humidity,
			Pressure:      w.Pressure,
			WindSpeed:     w.WindSpeed,
			WindDir:       w.WindDirName,
			Precipitation: w.Precipitation,
			Condition:     w.Condition,
			Icon:          w.Icon,
			Timestamp:     w.Time.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
