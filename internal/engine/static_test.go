package engine

import (
	"testing"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

func testThresholds() config.ThresholdsConfig {
	return config.DefaultConfig().Thresholds
}

func series(start time.Time, sensor model.Sensor, step time.Duration, values ...float64) []model.Reading {
	out := make([]model.Reading, 0, len(values))
	for i, v := range values {
		out = append(out, model.Reading{
			Timestamp: start.Add(time.Duration(i) * step),
			Sensor:    sensor,
			Value:     v,
		})
	}
	return out
}

func TestStaticTemperatureBand(t *testing.T) {
	th := testThresholds()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	readings := series(base, model.SensorTemperature, time.Minute,
		60.0, 61.9, 62.1, 57.8, 58.0)

	got := CheckStatic(readings, th)
	if len(got) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(got))
	}
	for _, a := range got {
		if a.Rule != RuleOvertemperature {
			t.Fatalf("unexpected rule %q", a.Rule)
		}
		if a.Kind != model.KindStatic {
			t.Fatalf("unexpected kind %q", a.Kind)
		}
	}
	if got[0].Value != 62.1 || got[1].Value != 57.8 {
		t.Fatalf("flagged wrong values: %v %v", got[0].Value, got[1].Value)
	}
}

func TestStaticFlowInactivityNeedsSustainedRun(t *testing.T) {
	th := testThresholds()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	// 4 minutes of zero flow never reaches the 5 minute mark
	short := series(base, model.SensorFlow, time.Minute, 0, 0, 0, 0)
	if got := CheckStatic(short, th); len(got) != 0 {
		t.Fatalf("short run flagged: %d anomalies", len(got))
	}

	// 7 consecutive zero samples: elapsed hits 5m at index 5
	long := series(base, model.SensorFlow, time.Minute, 0, 0, 0, 0, 0, 0, 0)
	got := CheckStatic(long, th)
	if len(got) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("first flag at %v, want %v", got[0].Timestamp, base.Add(5*time.Minute))
	}
	if got[0].Rule != RuleInactivity {
		t.Fatalf("unexpected rule %q", got[0].Rule)
	}
}

func TestStaticFlowRunResetsOnActivity(t *testing.T) {
	th := testThresholds()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	// activity at minute 3 splits the run; neither half reaches 5 minutes
	readings := series(base, model.SensorFlow, time.Minute,
		0, 0, 0, 0.5, 0, 0, 0, 0)
	if got := CheckStatic(readings, th); len(got) != 0 {
		t.Fatalf("split run flagged: %d anomalies", len(got))
	}
}

func TestStaticLevelAndPower(t *testing.T) {
	th := testThresholds()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	readings := []model.Reading{
		{Timestamp: base, Sensor: model.SensorLevel, Value: 0.19},
		{Timestamp: base.Add(time.Minute), Sensor: model.SensorLevel, Value: 0.2},
		{Timestamp: base.Add(2 * time.Minute), Sensor: model.SensorPower, Value: 6.6},
		{Timestamp: base.Add(3 * time.Minute), Sensor: model.SensorPower, Value: 6.5},
	}
	got := CheckStatic(readings, th)
	if len(got) != 2 {
		t.Fatalf("expected 2 anomalies, got %d", len(got))
	}
	if got[0].Rule != RuleLowLevel || got[1].Rule != RuleHighPower {
		t.Fatalf("unexpected rules %q %q", got[0].Rule, got[1].Rule)
	}
}

func TestStaticIsDeterministic(t *testing.T) {
	th := testThresholds()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	readings := series(base, model.SensorTemperature, time.Minute,
		60, 63, 60, 57, 60, 64)

	first := CheckStatic(readings, th)
	second := CheckStatic(readings, th)
	if len(first) != len(second) {
		t.Fatalf("runs disagree: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("anomaly %d differs between runs", i)
		}
	}
}

func TestWithinStaticBounds(t *testing.T) {
	th := testThresholds()
	cases := []struct {
		reading model.Reading
		want    bool
	}{
		{model.Reading{Sensor: model.SensorTemperature, Value: 60}, true},
		{model.Reading{Sensor: model.SensorTemperature, Value: 63}, false},
		{model.Reading{Sensor: model.SensorFlow, Value: 0.5}, true},
		{model.Reading{Sensor: model.SensorFlow, Value: 0.0005}, false},
		{model.Reading{Sensor: model.SensorLevel, Value: 0.5}, true},
		{model.Reading{Sensor: model.SensorLevel, Value: 0.1}, false},
		{model.Reading{Sensor: model.SensorPower, Value: 5}, true},
		{model.Reading{Sensor: model.SensorPower, Value: 7}, false},
	}
	for _, c := range cases {
		if got := WithinStaticBounds(c.reading, th); got != c.want {
			t.Fatalf("%s %v: got %v, want %v", c.reading.Sensor, c.reading.Value, got, c.want)
		}
	}
}
