package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/sweeney/fancoil-controller/internal/logic"
	"github.com/sweeney/fancoil-controller/internal/weather"
)

// tsLayout is fixed-width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS app_status (
	ts     TEXT NOT NULL,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS weather (
	ts             TEXT NOT NULL,
	lat            REAL,
	lon            REAL,
	temperature    REAL,
	humidity       REAL,
	pressure       REAL,
	condition      TEXT,
	condition_code TEXT,
	wind_speed     REAL,
	wind_dir_name  TEXT,
	wind_dir_deg   REAL,
	precipitation  REAL
);
CREATE TABLE IF NOT EXISTS sensor (
	ts             TEXT NOT NULL,
	temperature    REAL,
	pressure       REAL,
	humidity       REAL,
	gas_resistance REAL,
	air_quality    INTEGER,
	running        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS user_setting (
	ts          TEXT NOT NULL,
	target_temp REAL NOT NULL,
	fan_speed   INTEGER NOT NULL
);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// SQLite is the primary sink.
type SQLite struct {
	pool *sqlitex.Pool
	path string
	log  *zap.Logger
}

// OpenSQLite opens (or creates) the database at path and ensures the
// schema exists.
func OpenSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    2,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", path, err)
	}

	s := &SQLite{pool: pool, path: path, log: log}

	// Take one connection now so schema errors surface at startup.
	conn, err := pool.Take(context.Background())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	pool.Put(conn)

	log.Info("sqlite store opened", zap.String("path", path))
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, p := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, p, nil); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}

func (s *SQLite) exec(ctx context.Context, query string, args ...any) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	return nil
}

// RecordStatus inserts an app_status row.
func (s *SQLite) RecordStatus(ctx context.Context, ts time.Time, status string) error {
	return s.exec(ctx, `INSERT INTO app_status (ts, status) VALUES (?, ?)`, formatTS(ts), status)
}

// RecordWeather inserts a weather row.
func (s *SQLite) RecordWeather(ctx context.Context, ts time.Time, w weather.Snapshot) error {
	return s.exec(ctx, `INSERT INTO weather
		(ts, lat, lon, temperature, humidity, pressure, condition, condition_code,
		 wind_speed, wind_dir_name, wind_dir_deg, precipitation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTS(ts), w.Latitude, w.Longitude, w.Temperature, w.Humidity, w.Pressure,
		w.Condition, w.ConditionCode, w.WindSpeed, w.WindDirName, w.WindDirDeg, w.Precipitation)
}

// RecordSensor inserts a sensor row. Unknown air quality is stored as NULL.
func (s *SQLite) RecordSensor(ctx context.Context, ts time.Time, r logic.Reading, running bool) error {
	var aq any
	if r.AirQuality.Known {
		aq = r.AirQuality.Score
	}
	run := 0
	if running {
		run = 1
	}
	return s.exec(ctx, `INSERT INTO sensor
		(ts, temperature, pressure, humidity, gas_resistance, air_quality, running)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTS(ts), r.Temperature, r.Pressure, r.Humidity, r.GasResistance, aq, run)
}

// RecordUser inserts a user_setting row.
func (s *SQLite) RecordUser(ctx context.Context, ts time.Time, u UserRecord) error {
	return s.exec(ctx, `INSERT INTO user_setting (ts, target_temp, fan_speed) VALUES (?, ?, ?)`,
		formatTS(ts), u.TargetTemp, u.FanSpeed)
}

// LatestUser returns the most recent user setting, or ErrNotFound.
func (s *SQLite) LatestUser(ctx context.Context) (UserRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return UserRecord{}, fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		rec   UserRecord
		found bool
		perr  error
	)
	err = sqlitex.Execute(conn,
		`SELECT ts, target_temp, fan_speed FROM user_setting ORDER BY rowid DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				rec.Time, perr = parseTS(stmt.ColumnText(0))
				rec.TargetTemp = stmt.ColumnFloat(1)
				rec.FanSpeed = stmt.ColumnInt(2)
				return nil
			},
		})
	if err != nil {
		return UserRecord{}, fmt.Errorf("sqlite store: latest user: %w", err)
	}
	if !found {
		return UserRecord{}, ErrNotFound
	}
	if perr != nil {
		return UserRecord{}, fmt.Errorf("sqlite store: latest user: %w", perr)
	}
	return rec, nil
}

// LatestStatus returns the most recent app_status row, or ErrNotFound.
func (s *SQLite) LatestStatus(ctx context.Context) (StatusRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return StatusRecord{}, fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	var (
		rec   StatusRecord
		found bool
		perr  error
	)
	err = sqlitex.Execute(conn,
		`SELECT ts, status FROM app_status ORDER BY rowid DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				rec.Time, perr = parseTS(stmt.ColumnText(0))
				rec.Status = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		return StatusRecord{}, fmt.Errorf("sqlite store: latest status: %w", err)
	}
	if !found {
		return StatusRecord{}, ErrNotFound
	}
	if perr != nil {
		return StatusRecord{}, fmt.Errorf("sqlite store: latest status: %w", perr)
	}
	return rec, nil
}

// count returns the number of rows in table. Used by tests.
func (s *SQLite) count(ctx context.Context, table string) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var n int
	err = sqlitex.Execute(conn, `SELECT count(*) FROM `+table, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			n = stmt.ColumnInt(0)
			return nil
		},
	})
	return n, err
}

// Close closes the connection pool.
func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.log.Info("sqlite store closed", zap.String("path", s.path))
	return nil
}
