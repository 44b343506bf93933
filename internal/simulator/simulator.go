package simulator

import (
	"math/rand"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// Simulator produces synthetic sensor frames for a dispenser under a given
// demand. Deterministic for a fixed seed, demand, and start time.
type Simulator struct {
	cfg   *config.Config
	rng   *rand.Rand
	level float64
}

func New(cfg *config.Config) *Simulator {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Simulator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Simulator.Seed)),
		level: 1.0,
	}
}

// Frame emits one reading per sensor for the given instant. Flow tracks the
// aggregate demand with bounded noise, temperature hovers around the setpoint,
// the tank drains with dispensing and refills when it runs low, and power
// follows the heater's control error.
func (s *Simulator) Frame(at time.Time, users int) []model.Reading {
	sc := s.cfg.Simulator
	mc := s.cfg.Metrics
	th := s.cfg.Thresholds

	if users < 0 {
		users = 0
	}
	base := mc.AvgFlowRatePerUser * float64(users)
	flow := base * (1 + (s.rng.Float64()*2-1)*sc.FlowVariation)
	if flow < 0 {
		flow = 0
	}
	if flow > mc.PipeMaxFlow {
		flow = mc.PipeMaxFlow
	}

	temp := th.TemperatureSetpoint + (s.rng.Float64()*2-1)*sc.TempVariation

	// tank drains by the frame's dispensed volume; a low tank triggers refill
	drained := flow * mc.SampleInterval.Minutes() / sc.TankCapacityL
	s.level -= drained
	if s.level < th.LevelLow {
		s.level = 1.0
	}
	if s.level < 0 {
		s.level = 0
	}

	ctrlErr := th.TemperatureSetpoint - temp
	if ctrlErr < 0 {
		ctrlErr = 0
	}
	power := sc.PowerBase + sc.PowerPerDegC*ctrlErr + (s.rng.Float64()*2-1)*0.2
	if power < 0 {
		power = 0
	}

	at = at.UTC()
	return []model.Reading{
		{Timestamp: at, Sensor: model.SensorTemperature, Value: temp},
		{Timestamp: at, Sensor: model.SensorFlow, Value: flow},
		{Timestamp: at, Sensor: model.SensorLevel, Value: s.level},
		{Timestamp: at, Sensor: model.SensorPower, Value: power},
	}
}

// Run generates frames covering the given span at the configured sample
// interval, starting at start.
func (s *Simulator) Run(start time.Time, span time.Duration, users int) []model.Reading {
	interval := s.cfg.Metrics.SampleInterval
	if interval <= 0 {
		interval = time.Minute
	}
	frames := int(span / interval)
	out := make([]model.Reading, 0, frames*4)
	for i := 0; i < frames; i++ {
		out = append(out, s.Frame(start.Add(time.Duration(i)*interval), users)...)
	}
	return out
}

// Summary aggregates one batch of generated readings.
type Summary struct {
	TotalLiters    float64 `json:"total_liters"`
	TotalKWh       float64 `json:"total_kwh"`
	AvgTemperature float64 `json:"avg_temperature"`
}

// Summarize totals a batch under the same per-sample integration the metric
// engine uses.
func (s *Simulator) Summarize(readings []model.Reading) Summary {
	minutes := s.cfg.Metrics.SampleInterval.Minutes()
	var sum Summary
	var tempSum float64
	tempCount := 0
	for _, r := range readings {
		switch r.Sensor {
		case model.SensorFlow:
			sum.TotalLiters += r.Value * minutes
		case model.SensorPower:
			sum.TotalKWh += r.Value * minutes / 60
		case model.SensorTemperature:
			tempSum += r.Value
			tempCount++
		}
	}
	if tempCount > 0 {
		sum.AvgTemperature = tempSum / float64(tempCount)
	}
	return sum
}
