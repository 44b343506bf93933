package metrics

import (
	"math"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// Quality reports the share of temperature samples inside the setpoint band.
func (e *Engine) Quality(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	th := e.cfg.Thresholds
	temps := bySensor(inRange(readings, q), model.SensorTemperature)
	if len(temps) == 0 {
		return unknownReport("Quality", "%"), nil
	}
	within := 0
	for _, r := range temps {
		if math.Abs(r.Value-th.TemperatureSetpoint) <= th.TemperatureTolerance {
			within++
		}
	}
	value := percent(within, len(temps))
	return model.Report{
		Title:   "Quality",
		Unit:    "%",
		Value:   value,
		Samples: len(temps),
		Status:  Grade(value, e.cfg.Metrics.Tiers.Quality, HigherIsBetter),
		Metadata: map[string]any{
			"setpoint":  th.TemperatureSetpoint,
			"tolerance": th.TemperatureTolerance,
			"in_band":   within,
		},
	}, nil
}

// QualityFull is Quality plus the distribution around the band: how many
// samples run hot, how many run cold, and the summary statistics.
func (e *Engine) QualityFull(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	th := e.cfg.Thresholds
	temps := bySensor(inRange(readings, q), model.SensorTemperature)
	if len(temps) == 0 {
		return unknownReport("Quality (full)", "%"), nil
	}
	within, overheat, underheat := 0, 0, 0
	minV, maxV := temps[0].Value, temps[0].Value
	var sum float64
	for _, r := range temps {
		switch {
		case r.Value > th.TemperatureSetpoint+th.TemperatureTolerance:
			overheat++
		case r.Value < th.TemperatureSetpoint-th.TemperatureTolerance:
			underheat++
		default:
			within++
		}
		sum += r.Value
		if r.Value < minV {
			minV = r.Value
		}
		if r.Value > maxV {
			maxV = r.Value
		}
	}
	mean := sum / float64(len(temps))
	var sq float64
	for _, r := range temps {
		d := r.Value - mean
		sq += d * d
	}
	std := 0.0
	if len(temps) >= 2 {
		std = math.Sqrt(sq / float64(len(temps)-1))
	}
	value := percent(within, len(temps))
	return model.Report{
		Title:   "Quality (full)",
		Unit:    "%",
		Value:   value,
		Samples: len(temps),
		Status:  Grade(value, e.cfg.Metrics.Tiers.Quality, HigherIsBetter),
		Metadata: map[string]any{
			"setpoint":          th.TemperatureSetpoint,
			"tolerance":         th.TemperatureTolerance,
			"overheat_count":    overheat,
			"overheat_percent":  percent(overheat, len(temps)),
			"underheat_count":   underheat,
			"underheat_percent": percent(underheat, len(temps)),
			"min":               round2(minV),
			"mean":              round2(mean),
			"max":               round2(maxV),
			"std":               round2(finite(std)),
		},
	}, nil
}

// ThermalVariation reports the sample standard deviation of the temperature.
func (e *Engine) ThermalVariation(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	temps := bySensor(inRange(readings, q), model.SensorTemperature)
	if len(temps) < 2 {
		return unknownReport("Thermal Variation", "°C"), nil
	}
	var sum float64
	for _, r := range temps {
		sum += r.Value
	}
	mean := sum / float64(len(temps))
	var sq float64
	for _, r := range temps {
		d := r.Value - mean
		sq += d * d
	}
	std := finite(math.Sqrt(sq / float64(len(temps)-1)))
	return model.Report{
		Title:   "Thermal Variation",
		Unit:    "°C",
		Value:   round2(std),
		Samples: len(temps),
		Status:  Grade(std, e.cfg.Metrics.Tiers.ThermalVariation, LowerIsBetter),
		Metadata: map[string]any{
			"mean": round2(mean),
		},
	}, nil
}
