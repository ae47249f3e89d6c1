// Package store persists status, weather, sensor and user-setting records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// Application status values.
const (
	StatusOn  = "ON"
	StatusOff = "OFF"
)

// ErrNotFound is returned by queries with no matching record.
var ErrNotFound = errors.New("store: no record")

// Sink accepts timestamped records. Implementations need not be safe for
// concurrent use: the orchestrator is the only writer.
type Sink interface {
	RecordStatus(ctx context.Context, ts time.Time, status string) error
	RecordWeather(ctx context.Context, ts time.Time, w weather.Snapshot) error
	RecordSensor(ctx context.Context, ts time.Time, r logic.Reading, running bool) error
	RecordUser(ctx context.Context, ts time.Time, u UserRecord) error
	Close() error
}

// UserRecord is a persisted user setting.
type UserRecord struct {
	Time       time.Time
	TargetTemp float64
	FanSpeed   int
}

// StatusRecord is a persisted application status change.
type StatusRecord struct {
	Time   time.Time
	Status string
}

// History reads back the most recent records.
type History interface {
	LatestUser(ctx context.Context) (UserRecord, error)
	LatestStatus(ctx context.Context) (StatusRecord, error)
}

// Multi writes every record to each sink in order. A failing sink does
// not stop the others; the errors are joined.
type Multi []Sink

func (m Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) RecordStatus(ctx context.Context, ts time.Time, status string) error {
	return m.each(func(s Sink) error { return s.RecordStatus(ctx, ts, status) })
}

func (m Multi) RecordWeather(ctx context.Context, ts time.Time, w weather.Snapshot) error {
	return m.each(func(s Sink) error { return s.RecordWeather(ctx, ts, w) })
}

func (m Multi) RecordSensor(ctx context.Context, ts time.Time, r logic.Reading, running bool) error {
	return m.each(func(s Sink) error { return s.RecordSensor(ctx, ts, r, running) })
}

func (m Multi) RecordUser(ctx context.Context, ts time.Time, u UserRecord) error {
	return m.each(func(s Sink) error { return s.RecordUser(ctx, ts, u) })
}

func (m Multi) Close() error {
	return m.each(func(s Sink) error { return s.Close() })
}
