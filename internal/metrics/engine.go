package metrics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/engine"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// Query carries the caller-supplied parameters of one metric computation.
// Nil Start/End mean "all available data"; zero Users/Hours/Window take the
// configured defaults.
type Query struct {
	Start  *time.Time
	End    *time.Time
	Users  int
	Hours  float64
	Window int
	Sensor model.Sensor
}

// Engine computes metric reports over caller-supplied readings. It holds only
// the immutable configuration, so independent requests may call it
// concurrently without coordination.
type Engine struct {
	cfg *config.Config
}

func NewEngine(cfg *config.Config) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// MetricFunc is the uniform contract every metric implements.
type MetricFunc func(readings []model.Reading, q Query) (model.Report, error)

// Names lists the available metrics in a stable order.
func (e *Engine) Names() []string {
	return []string{
		"availability",
		"performance",
		"quality",
		"quality_full",
		"energy_efficiency",
		"thermal_variation",
		"peak_flow_ratio",
		"mtba",
		"mtbf",
		"failures_count",
		"response_index",
		"response_time",
		"level_uptime",
		"nonproductive_consumption",
		"usage_rate",
	}
}

// ByName resolves a metric by its wire name.
func (e *Engine) ByName(name string) (MetricFunc, bool) {
	switch name {
	case "availability":
		return e.Availability, true
	case "performance":
		return e.Performance, true
	case "quality":
		return e.Quality, true
	case "quality_full":
		return e.QualityFull, true
	case "energy_efficiency":
		return e.EnergyEfficiency, true
	case "thermal_variation":
		return e.ThermalVariation, true
	case "peak_flow_ratio":
		return e.PeakFlowRatio, true
	case "mtba":
		return e.MTBA, true
	case "mtbf":
		return e.MTBF, true
	case "failures_count":
		return e.FailuresCount, true
	case "response_index":
		return e.ResponseIndex, true
	case "response_time":
		return e.ResponseTime, true
	case "level_uptime":
		return e.LevelUptime, true
	case "nonproductive_consumption":
		return e.NonproductiveConsumption, true
	case "usage_rate":
		return e.UsageRate, true
	}
	return nil, false
}

// validate rejects malformed queries before any computation begins.
func (e *Engine) validate(q Query) error {
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return fmt.Errorf("%w: %s > %s", engine.ErrInvalidRange,
			q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	if q.Window < 0 {
		return fmt.Errorf("%w: %d", engine.ErrBadWindow, q.Window)
	}
	if q.Sensor != "" {
		if _, err := model.ParseSensor(string(q.Sensor)); err != nil {
			return fmt.Errorf("%w: %q", engine.ErrUnknownSensor, q.Sensor)
		}
	}
	return nil
}

func (q Query) users() int {
	if q.Users <= 0 {
		return 1
	}
	return q.Users
}

func (q Query) hours() float64 {
	if q.Hours <= 0 {
		return 1
	}
	return q.Hours
}

func (e *Engine) window(q Query) int {
	if q.Window > 0 {
		return q.Window
	}
	return e.cfg.Detection.Window
}

// inRange filters to the requested window and returns the result ordered by
// timestamp. Both bounds are inclusive.
func inRange(readings []model.Reading, q Query) []model.Reading {
	out := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if q.Start != nil && r.Timestamp.Before(*q.Start) {
			continue
		}
		if q.End != nil && r.Timestamp.After(*q.End) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Sensor < out[j].Sensor
	})
	return out
}

func bySensor(readings []model.Reading, s model.Sensor) []model.Reading {
	out := make([]model.Reading, 0, len(readings))
	for _, r := range readings {
		if r.Sensor == s {
			out = append(out, r)
		}
	}
	return out
}

// integralMinutes treats each sample as holding for one nominal sampling
// interval: Σ value × interval. For flow (L/min) the result is liters, for
// power (kW) it is kW·min.
func (e *Engine) integralMinutes(readings []model.Reading) float64 {
	minutes := e.cfg.Metrics.SampleInterval.Minutes()
	var total float64
	for _, r := range readings {
		total += r.Value * minutes
	}
	return total
}

// finite normalizes NaN/Inf to a sentinel so no report ever carries one.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func unknownReport(title, unit string) model.Report {
	return model.Report{Title: title, Unit: unit, Value: 0, Samples: 0, Status: StatusUnknown}
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}
