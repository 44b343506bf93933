package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveReadings(ctx context.Context, readings []model.Reading) error
	// FetchRange returns readings ordered by timestamp ascending. Empty
	// sensor means all sensors; nil bounds mean unbounded.
	FetchRange(ctx context.Context, sensor model.Sensor, start, end *time.Time) ([]model.Reading, error)
	Latest(ctx context.Context, sensor model.Sensor) (model.Reading, error)
	Clear(ctx context.Context) error
}

// ErrNoReadings is returned by Latest when the store holds nothing matching.
var ErrNoReadings = errors.New("no readings stored")

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// scanReadings drains a query over (sensor, ts, value) columns.
func scanReadings(rows *sql.Rows) ([]model.Reading, error) {
	defer rows.Close()
	out := make([]model.Reading, 0)
	for rows.Next() {
		var (
			sensor string
			ts     time.Time
			value  float64
		)
		if err := rows.Scan(&sensor, &ts, &value); err != nil {
			return nil, err
		}
		s, err := model.ParseSensor(sensor)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Reading{Timestamp: ts.UTC(), Sensor: s, Value: value})
	}
	return out, rows.Err()
}
