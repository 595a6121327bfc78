// Package history provides the SQLite-backed implementation of the history
// store used in production deployments.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mgrande/ladevakt/core/history"
	"github.com/mgrande/ladevakt/core/model"
)

// SQLiteStore persists snapshots, recommendations and errors in a SQLite
// database. It implements history.Store.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS battery_readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_id TEXT NOT NULL,
    vehicle_name TEXT NOT NULL,
    battery_percent REAL NOT NULL,
    range_km REAL NOT NULL,
    is_charging INTEGER NOT NULL,
    charging_power_kw REAL,
    latitude REAL,
    longitude REAL,
    address TEXT,
    captured_at INTEGER NOT NULL,
    estimated_full INTEGER,
    is_simulated INTEGER NOT NULL,
    is_stale INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_readings_vehicle_time ON battery_readings(vehicle_id, captured_at);
CREATE TABLE IF NOT EXISTS recommendations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vehicle_id TEXT NOT NULL,
    action TEXT NOT NULL,
    reason TEXT NOT NULL,
    battery_percent REAL NOT NULL,
    threshold REAL NOT NULL,
    priority_score REAL NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recs_vehicle_time ON recommendations(vehicle_id, created_at);
CREATE TABLE IF NOT EXISTS errors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    kind TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at INTEGER NOT NULL
);`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// modernc.org/sqlite is not safe for concurrent writers on one
	// connection pool entry; a single connection serializes access.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, st model.Status) error {
	var power, lat, lon sql.NullFloat64
	if st.ChargePowerKW != nil {
		power = sql.NullFloat64{Float64: *st.ChargePowerKW, Valid: true}
	}
	if st.Latitude != nil {
		lat = sql.NullFloat64{Float64: *st.Latitude, Valid: true}
	}
	if st.Longitude != nil {
		lon = sql.NullFloat64{Float64: *st.Longitude, Valid: true}
	}
	var full sql.NullInt64
	if st.EstimatedFull != nil {
		full = sql.NullInt64{Int64: st.EstimatedFull.Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO battery_readings
        (vehicle_id, vehicle_name, battery_percent, range_km, is_charging,
         charging_power_kw, latitude, longitude, address, captured_at,
         estimated_full, is_simulated, is_stale)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.VehicleID, st.VehicleName, st.BatteryPercent, st.RangeKM, st.Charging,
		power, lat, lon, st.Address, st.CapturedAt.Unix(),
		full, st.Simulated, st.Stale)
	return err
}

func (s *SQLiteStore) SaveRecommendation(ctx context.Context, rec model.Recommendation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO recommendations
        (vehicle_id, action, reason, battery_percent, threshold, priority_score, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.VehicleID, string(rec.Action), rec.Reason, rec.BatteryPercent,
		rec.Threshold, rec.Urgency, rec.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) SaveError(ctx context.Context, source, kind, message string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO errors (source, kind, message, created_at)
        VALUES (?, ?, ?, ?)`, source, kind, message, time.Now().Unix())
	return err
}

const readingColumns = `vehicle_id, vehicle_name, battery_percent, range_km, is_charging,
    charging_power_kw, latitude, longitude, address, captured_at, estimated_full,
    is_simulated, is_stale`

func (s *SQLiteStore) Query(ctx context.Context, q history.Query) ([]model.Status, error) {
	query := `SELECT ` + readingColumns + ` FROM battery_readings WHERE 1=1`
	var args []any
	if q.VehicleID != "" {
		query += ` AND vehicle_id = ?`
		args = append(args, q.VehicleID)
	}
	if !q.Since.IsZero() {
		query += ` AND captured_at >= ?`
		args = append(args, q.Since.Unix())
	}
	query += ` ORDER BY captured_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var res []model.Status
	for rows.Next() {
		st, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Latest(ctx context.Context, vehicleID string) (model.Status, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+readingColumns+`
        FROM battery_readings WHERE vehicle_id = ?
        ORDER BY captured_at DESC LIMIT 1`, vehicleID)
	if err != nil {
		return model.Status{}, false, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return model.Status{}, false, rows.Err()
	}
	st, err := scanReading(rows)
	if err != nil {
		return model.Status{}, false, err
	}
	return st, true, rows.Err()
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	ts := cutoff.Unix()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM battery_readings WHERE captured_at < ?`, ts); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recommendations WHERE created_at < ?`, ts); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM errors WHERE created_at < ?`, ts)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Errors returns stored error records since the given instant, newest first.
func (s *SQLiteStore) Errors(ctx context.Context, since time.Time) ([]history.ErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, kind, message, created_at
        FROM errors WHERE created_at >= ? ORDER BY created_at DESC`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []history.ErrorRecord
	for rows.Next() {
		var r history.ErrorRecord
		var ts int64
		if err := rows.Scan(&r.Source, &r.Kind, &r.Message, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(ts, 0).UTC()
		res = append(res, r)
	}
	return res, rows.Err()
}

func scanReading(rows *sql.Rows) (model.Status, error) {
	var st model.Status
	var power, lat, lon sql.NullFloat64
	var capturedAt int64
	var full sql.NullInt64
	if err := rows.Scan(&st.VehicleID, &st.VehicleName, &st.BatteryPercent, &st.RangeKM,
		&st.Charging, &power, &lat, &lon, &st.Address, &capturedAt, &full,
		&st.Simulated, &st.Stale); err != nil {
		return model.Status{}, err
	}
	st.CapturedAt = time.Unix(capturedAt, 0).UTC()
	if power.Valid {
		st.ChargePowerKW = &power.Float64
	}
	if lat.Valid {
		st.Latitude = &lat.Float64
	}
	if lon.Valid {
		st.Longitude = &lon.Float64
	}
	if full.Valid {
		t := time.Unix(full.Int64, 0).UTC()
		st.EstimatedFull = &t
	}
	return st, nil
}
