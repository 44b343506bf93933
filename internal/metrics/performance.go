package metrics

import (
	"math"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// Performance compares dispensed volume against the demand profile: expected
// liters are avg_flow_rate_per_user × 60 × users × hours, actual liters come
// from integrating the flow samples. Value is the actual/expected ratio.
func (e *Engine) Performance(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	mc := e.cfg.Metrics
	flows := bySensor(inRange(readings, q), model.SensorFlow)
	if len(flows) == 0 {
		return unknownReport("Performance", "ratio"), nil
	}
	actual := e.integralMinutes(flows)
	expected := mc.AvgFlowRatePerUser * 60 * float64(q.users()) * q.hours()
	if expected <= 0 {
		return unknownReport("Performance", "ratio"), nil
	}
	ratio := finite(actual / expected)
	dev := math.Abs(ratio - 1)
	status := Grade(dev, mc.Tiers.PerformanceDev, LowerIsBetter)
	if ratio < mc.PerformanceFloor {
		status = "critical"
	}
	return model.Report{
		Title:         "Performance",
		Unit:          "ratio",
		Value:         round2(ratio),
		ExpectedValue: round2(expected),
		Samples:       len(flows),
		Status:        status,
		Metadata: map[string]any{
			"actual_liters": round2(actual),
			"users":         q.users(),
			"hours":         q.hours(),
		},
	}, nil
}

// PeakFlowRatio compares the highest observed flow against the nominal
// aggregate demand. Readings above the pipe's physical maximum are counted
// separately as capacity violations.
func (e *Engine) PeakFlowRatio(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	mc := e.cfg.Metrics
	flows := bySensor(inRange(readings, q), model.SensorFlow)
	if len(flows) == 0 {
		return unknownReport("Peak Flow Ratio", "ratio"), nil
	}
	peak := flows[0].Value
	violations := 0
	for _, r := range flows {
		if r.Value > peak {
			peak = r.Value
		}
		if r.Value > mc.PipeMaxFlow {
			violations++
		}
	}
	nominal := mc.AvgFlowRatePerUser * float64(q.users())
	if nominal <= 0 {
		return unknownReport("Peak Flow Ratio", "ratio"), nil
	}
	ratio := finite(peak / nominal)
	return model.Report{
		Title:         "Peak Flow Ratio",
		Unit:          "ratio",
		Value:         round2(ratio),
		ExpectedValue: 1.0,
		Samples:       len(flows),
		Status:        Grade(ratio, mc.Tiers.PeakFlowRatio, LowerIsBetter),
		Metadata: map[string]any{
			"peak_flow":           round2(peak),
			"nominal_flow":        round2(nominal),
			"capacity_violations": violations,
		},
	}, nil
}

// UsageRate counts dispensing services per hour. A service is one contiguous
// run of flow samples above the activity threshold.
func (e *Engine) UsageRate(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	mc := e.cfg.Metrics
	flows := bySensor(inRange(readings, q), model.SensorFlow)
	if len(flows) == 0 {
		return unknownReport("Usage Rate", "services/h"), nil
	}
	services := 0
	activeTicks := 0
	inService := false
	for _, r := range flows {
		active := r.Value > mc.FlowActiveLevel
		if active && !inService {
			services++
		}
		if active {
			activeTicks++
		}
		inService = active
	}
	spanHours := float64(len(flows)) * mc.SampleInterval.Hours()
	if spanHours <= 0 {
		return unknownReport("Usage Rate", "services/h"), nil
	}
	rate := finite(float64(services) / spanHours)
	avgServiceMinutes := 0.0
	if services > 0 {
		avgServiceMinutes = float64(activeTicks) * mc.SampleInterval.Minutes() / float64(services)
	}
	return model.Report{
		Title:   "Usage Rate",
		Unit:    "services/h",
		Value:   round2(rate),
		Samples: len(flows),
		Status:  Grade(rate, mc.Tiers.UsageRate, HigherIsBetter),
		Metadata: map[string]any{
			"services":            services,
			"span_hours":          round2(spanHours),
			"total_liters":        round2(e.integralMinutes(flows)),
			"avg_service_minutes": round2(avgServiceMinutes),
		},
	}, nil
}
