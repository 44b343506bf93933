package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestSQLiteSaveAndFetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	readings := []model.Reading{
		{Timestamp: base.Add(2 * time.Minute), Sensor: model.SensorFlow, Value: 0.5},
		{Timestamp: base, Sensor: model.SensorTemperature, Value: 60},
		{Timestamp: base.Add(time.Minute), Sensor: model.SensorFlow, Value: 0.4},
	}
	if err := s.SaveReadings(ctx, readings); err != nil {
		t.Fatalf("save: %v", err)
	}

	all, err := s.FetchRange(ctx, "", nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("fetched %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.Before(all[i-1].Timestamp) {
			t.Fatalf("results not ascending at %d", i)
		}
	}
}

func TestSQLiteFetchRangeFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var readings []model.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings,
			model.Reading{Timestamp: base.Add(time.Duration(i) * time.Minute), Sensor: model.SensorFlow, Value: float64(i)},
			model.Reading{Timestamp: base.Add(time.Duration(i) * time.Minute), Sensor: model.SensorPower, Value: 5},
		)
	}
	if err := s.SaveReadings(ctx, readings); err != nil {
		t.Fatalf("save: %v", err)
	}

	start := base.Add(2 * time.Minute)
	end := base.Add(5 * time.Minute)
	got, err := s.FetchRange(ctx, model.SensorFlow, &start, &end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// bounds are inclusive: minutes 2,3,4,5
	if len(got) != 4 {
		t.Fatalf("fetched %d, want 4", len(got))
	}
	for _, r := range got {
		if r.Sensor != model.SensorFlow {
			t.Fatalf("wrong sensor %s", r.Sensor)
		}
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			t.Fatalf("reading at %v outside range", r.Timestamp)
		}
	}
}

func TestSQLiteLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	if _, err := s.Latest(ctx, ""); !errors.Is(err, ErrNoReadings) {
		t.Fatalf("empty store: got %v, want ErrNoReadings", err)
	}

	readings := []model.Reading{
		{Timestamp: base, Sensor: model.SensorFlow, Value: 0.1},
		{Timestamp: base.Add(time.Minute), Sensor: model.SensorFlow, Value: 0.2},
		{Timestamp: base.Add(2 * time.Minute), Sensor: model.SensorPower, Value: 5},
	}
	if err := s.SaveReadings(ctx, readings); err != nil {
		t.Fatalf("save: %v", err)
	}

	latest, err := s.Latest(ctx, "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Sensor != model.SensorPower {
		t.Fatalf("latest sensor %s", latest.Sensor)
	}

	latestFlow, err := s.Latest(ctx, model.SensorFlow)
	if err != nil {
		t.Fatalf("latest flow: %v", err)
	}
	if latestFlow.Value != 0.2 {
		t.Fatalf("latest flow value %v", latestFlow.Value)
	}
}

func TestSQLiteClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	readings := []model.Reading{
		{Timestamp: time.Now().UTC(), Sensor: model.SensorFlow, Value: 0.1},
	}
	if err := s.SaveReadings(ctx, readings); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, err := s.FetchRange(ctx, "", nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("%d readings after clear", len(all))
	}
}

func TestNewStoreDriverSwitch(t *testing.T) {
	if _, err := NewStore(config.StorageConfig{Driver: "mongodb"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	dsn := "file:" + filepath.Join(t.TempDir(), "switch.db")
	s, err := NewStore(config.StorageConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = s.Close()
}
