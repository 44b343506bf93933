package anomstore

import (
	"testing"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

func anomaly(at time.Time, rule string) model.Anomaly {
	return model.Anomaly{Timestamp: at, Sensor: model.SensorFlow, Kind: model.KindStatic, Rule: rule}
}

func TestStoreBounded(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(anomaly(base.Add(time.Duration(i)*time.Minute), "inactivity"))
	}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	list := s.List(0)
	if !list[0].Timestamp.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("oldest kept entry at %v", list[0].Timestamp)
	}
	if !list[2].Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("newest entry at %v", list[2].Timestamp)
	}
}

func TestStoreListLimit(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(10)
	for i := 0; i < 6; i++ {
		s.Add(anomaly(base.Add(time.Duration(i)*time.Minute), "low_level"))
	}
	list := s.List(2)
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if !list[1].Timestamp.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("limit did not keep the newest entries")
	}
}

func TestStoreSince(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(10)
	for i := 0; i < 6; i++ {
		s.Add(anomaly(base.Add(time.Duration(i)*time.Minute), "high_power"))
	}
	got := s.Since(base.Add(4 * time.Minute))
	if len(got) != 2 {
		t.Fatalf("since returned %d, want 2", len(got))
	}
}

func TestStoreClear(t *testing.T) {
	s := NewStore(10)
	s.Add(anomaly(time.Now(), "inactivity"))
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("len after clear = %d", s.Len())
	}
}
