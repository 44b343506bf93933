package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/dispenser?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			sensor TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			value DOUBLE PRECISION NOT NULL
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

func (s *postgresStore) SaveReadings(ctx context.Context, readings []model.Reading) error {
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
		`INSERT INTO readings (sensor, ts, value) VALUES ($1, $2, $3)`)
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

func (s *postgresStore) FetchRange(ctx context.Context, sensor model.Sensor, start, end *time.Time) ([]model.Reading, error) {
	query := `SELECT sensor, ts, value FROM readings`
	var (
		where []string
		args  []any
	)
	if sensor != "" {
		args = append(args, string(sensor))
		where = append(where, fmt.Sprintf("sensor = $%d", len(args)))
	}
	if start != nil {
		args = append(args, start.UTC())
		where = append(where, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if end != nil {
		args = append(args, end.UTC())
		where = append(where, fmt.Sprintf("ts <= $%d", len(args)))
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

func (s *postgresStore) Latest(ctx context.Context, sensor model.Sensor) (model.Reading, error) {
	query := `SELECT sensor, ts, value FROM readings`
	var args []any
	if sensor != "" {
		query += ` WHERE sensor = $1`
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

func (s *postgresStore) Clear(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `TRUNCATE readings`)
	return err
}
