package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:dispenser.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sensor TEXT NOT NULL,
			ts TIMESTAMP NOT NULL,
			value REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON readings(sensor, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveReadings(ctx context.Context, readings []model.Reading) error {
	if s.db == nil || len(readings) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO readings (sensor, ts, value) VALUES (?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, string(r.Sensor), r.Timestamp.UTC(), r.Value); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) FetchRange(ctx context.Context, sensor model.Sensor, start, end *time.Time) ([]model.Reading, error) {
	query := `SELECT sensor, ts, value FROM readings`
	var (
		where []string
		args  []any
	)
	if sensor != "" {
		where = append(where, "sensor = ?")
		args = append(args, string(sensor))
	}
	if start != nil {
		where = append(where, "ts >= ?")
		args = append(args, start.UTC())
	}
	if end != nil {
		where = append(where, "ts <= ?")
		args = append(args, end.UTC())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts ASC, sensor ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanReadings(rows)
}

func (s *sqliteStore) Latest(ctx context.Context, sensor model.Sensor) (model.Reading, error) {
	query := `SELECT sensor, ts, value FROM readings`
	var args []any
	if sensor != "" {
		query += ` WHERE sensor = ?`
		args = append(args, string(sensor))
	}
	query += ` ORDER BY ts DESC LIMIT 1`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Reading{}, err
	}
	readings, err := scanReadings(rows)
	if err != nil {
		return model.Reading{}, err
	}
	if len(readings) == 0 {
		return model.Reading{}, ErrNoReadings
	}
	return readings[0], nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM readings`)
	return err
}
