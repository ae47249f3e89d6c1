package store

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// InfluxConfig locates the time-series bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// Device tags every point.
	Device string
}

// Influx mirrors records into InfluxDB for dashboards.
type Influx struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	device string
}

// NewInflux creates an Influx sink. No connection is made until the
// first write.
func NewInflux(cfg InfluxConfig) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		device: cfg.Device,
	}
}

func (i *Influx) point(measurement string, fields map[string]interface{}, ts time.Time) *write.Point {
	return influxdb2.NewPoint(measurement, map[string]string{"device": i.device}, fields, ts)
}

func (i *Influx) writePoint(ctx context.Context, p *write.Point) error {
	if err := i.write.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx store: write %s: %w", p.Name(), err)
	}
	return nil
}

// RecordStatus writes an app_status point.
func (i *Influx) RecordStatus(ctx context.Context, ts time.Time, status string) error {
	return i.writePoint(ctx, i.point("app_status", map[string]interface{}{"status": status}, ts))
}

// RecordWeather writes a weather point.
func (i *Influx) RecordWeather(ctx context.Context, ts time.Time, w weather.Snapshot) error {
	p := i.point("weather", map[string]interface{}{
		"temperature":   w.Temperature,
		"humidity":      w.Humidity,
		"pressure":      w.Pressure,
		"wind_speed":    w.WindSpeed,
		"wind_dir_deg":  w.WindDirDeg,
		"precipitation": w.Precipitation,
	}, ts)
	p.AddTag("condition", w.Condition)
	p.AddTag("wind_dir_name", w.WindDirName)
	return i.writePoint(ctx, p)
}

// RecordSensor writes a sensor point. Unknown air quality is omitted.
func (i *Influx) RecordSensor(ctx context.Context, ts time.Time, r logic.Reading, running bool) error {
	fields := map[string]interface{}{
		"temperature":    r.Temperature,
		"pressure":       r.Pressure,
		"humidity":       r.Humidity,
		"gas_resistance": r.GasResistance,
		"running":        running,
	}
	if r.AirQuality.Known {
		fields["air_quality"] = r.AirQuality.Score
	}
	return i.writePoint(ctx, i.point("sensor", fields, ts))
}

// RecordUser writes a user_setting point.
func (i *Influx) RecordUser(ctx context.Context, ts time.Time, u UserRecord) error {
	return i.writePoint(ctx, i.point("user_setting", map[string]interface{}{
		"target_temp": u.TargetTemp,
		"fan_speed":   u.FanSpeed,
	}, ts))
}

// Close releases the client.
func (i *Influx) Close() error {
	i.client.Close()
	return nil
}
