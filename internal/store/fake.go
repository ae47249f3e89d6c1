package store

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// SensorRecord is a recorded sensor row.
type SensorRecord struct {
	Time    time.Time
	Reading logic.Reading
	Running bool
}

// Fake records everything in memory for test assertions.
type Fake struct {
	mu sync.Mutex

	Statuses []StatusRecord
	Weather  []weather.Snapshot
	Sensors  []SensorRecord
	Users    []UserRecord

	// Err, if set, is returned by every Record call.
	Err error

	Closed bool
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) RecordStatus(ctx context.Context, ts time.Time, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Statuses = append(f.Statuses, StatusRecord{Time: ts, Status: status})
	return nil
}

func (f *Fake) RecordWeather(ctx context.Context, ts time.Time, w weather.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Weather = append(f.Weather, w)
	return nil
}

func (f *Fake) RecordSensor(ctx context.Context, ts time.Time, r logic.Reading, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sensors = append(f.Sensors, SensorRecord{Time: ts, Reading: r, Running: running})
	return nil
}

func (f *Fake) RecordUser(ctx context.Context, ts time.Time, u UserRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	u.Time = ts
	f.Users = append(f.Users, u)
	return nil
}

func (f *Fake) LatestUser(ctx context.Context) (UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Users) == 0 {
		return UserRecord{}, ErrNotFound
	}
	return f.Users[len(f.Users)-1], nil
}

func (f *Fake) LatestStatus(ctx context.Context) (StatusRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Statuses) == 0 {
		return StatusRecord{}, ErrNotFound
	}
	return f.Statuses[len(f.Statuses)-1], nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Snapshot returns copies of the recorded rows.
func (f *Fake) Snapshot() (statuses []StatusRecord, sensors []SensorRecord, users []UserRecord, weathers []weather.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]StatusRecord(nil), f.Statuses...),
		append([]SensorRecord(nil), f.Sensors...),
		append([]UserRecord(nil), f.Users...),
		append([]weather.Snapshot(nil), f.Weather...)
}
