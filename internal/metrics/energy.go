package metrics

import (
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// EnergyEfficiency reports consumed energy per dispensed liter against the
// thermodynamic expectation Cp·ΔT / (3600·η), where ΔT is the lift from
// ambient to the setpoint. Grading compares the observed figure to the
// expectation as a ratio.
func (e *Engine) EnergyEfficiency(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	mc := e.cfg.Metrics
	scoped := inRange(readings, q)
	flows := bySensor(scoped, model.SensorFlow)
	powers := bySensor(scoped, model.SensorPower)
	if len(flows) == 0 || len(powers) == 0 {
		return unknownReport("Energy Efficiency", "kWh/L"), nil
	}
	liters := e.integralMinutes(flows)
	if liters <= 0 {
		return unknownReport("Energy Efficiency", "kWh/L"), nil
	}
	kwh := e.integralMinutes(powers) / 60
	perLiter := finite(kwh / liters)

	deltaT := e.cfg.Thresholds.TemperatureSetpoint - mc.AmbientTemp
	expected := mc.CpWater * deltaT / (3600 * mc.HeaterEfficiency)
	status := StatusUnknown
	ratio := 0.0
	if expected > 0 {
		ratio = finite(perLiter / expected)
		status = Grade(ratio, mc.Tiers.EnergyRatio, LowerIsBetter)
	}
	return model.Report{
		Title:         "Energy Efficiency",
		Unit:          "kWh/L",
		Value:         round2(perLiter),
		ExpectedValue: round2(expected),
		Samples:       len(flows) + len(powers),
		Status:        status,
		Metadata: map[string]any{
			"total_kwh":    round2(kwh),
			"total_liters": round2(liters),
			"ratio":        round2(ratio),
		},
	}, nil
}

// NonproductiveConsumption reports energy spent while no water was being
// dispensed, as a share of total energy. Power ticks without a same-timestamp
// flow sample are skipped rather than guessed at.
func (e *Engine) NonproductiveConsumption(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	scoped := inRange(readings, q)
	powers := bySensor(scoped, model.SensorPower)
	if len(powers) == 0 {
		return unknownReport("Nonproductive Consumption", "kWh"), nil
	}
	flowAt := make(map[int64]float64)
	for _, r := range bySensor(scoped, model.SensorFlow) {
		flowAt[r.Timestamp.UnixNano()] = r.Value
	}
	minutes := e.cfg.Metrics.SampleInterval.Minutes()
	var idleKwh, totalKwh float64
	matched := 0
	for _, r := range powers {
		kwh := r.Value * minutes / 60
		totalKwh += kwh
		flow, ok := flowAt[r.Timestamp.UnixNano()]
		if !ok {
			continue
		}
		matched++
		if flow <= e.cfg.Thresholds.FlowInactivityLevel {
			idleKwh += kwh
		}
	}
	pct := 0.0
	if totalKwh > 0 {
		pct = finite(idleKwh / totalKwh * 100)
	}
	return model.Report{
		Title:   "Nonproductive Consumption",
		Unit:    "kWh",
		Value:   round2(idleKwh),
		Samples: len(powers),
		Status:  Grade(pct, e.cfg.Metrics.Tiers.NonproductivePct, LowerIsBetter),
		Metadata: map[string]any{
			"total_kwh":     round2(totalKwh),
			"idle_percent":  round2(pct),
			"matched_ticks": matched,
		},
	}, nil
}
