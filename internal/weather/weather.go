// Package weather fetches outdoor conditions and feeds them to the
// orchestrator on a clock-aligned schedule.
package weather

import (
	"context"
	"math"
	"time"
)

// Snapshot is one set of outdoor conditions. It replaces the previous
// snapshot wholesale.
type Snapshot struct {
	Time          time.Time `json:"time"`
	Latitude      float64   `json:"lat"`
	Longitude     float64   `json:"lon"`
	Temperature   float64   `json:"temperature"` // °C
	Humidity      float64   `json:"humidity"`    // %RH
	Pressure      float64   `json:"pressure"`    // hPa
	WindSpeed     float64   `json:"wind_speed"`  // km/h
	WindDirDeg    float64   `json:"wind_dir_deg"`
	WindDirName   string    `json:"wind_dir_name"`
	Precipitation float64   `json:"precipitation"` // mm over the next hour
	Condition     string    `json:"condition"`
	ConditionCode string    `json:"condition_code"`
	Icon          string    `json:"icon"`
}

// Fetcher retrieves current conditions. Every error is treated as transient.
type Fetcher interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

var compass = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DirectionName returns the 16-point compass name for a bearing in degrees.
func DirectionName(deg float64) string {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return compass[int((d+11.25)/22.5)%len(compass)]
}

// msToKmh converts m/s to km/h rounded to two decimals.
func msToKmh(ms float64) float64 {
	return math.Round(ms*3.6*100) / 100
}
