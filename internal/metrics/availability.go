package metrics

import (
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// Availability reports the share of flow samples with any dispensing at all.
func (e *Engine) Availability(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	flows := bySensor(inRange(readings, q), model.SensorFlow)
	if len(flows) == 0 {
		return unknownReport("Availability", "%"), nil
	}
	active := 0
	for _, r := range flows {
		if r.Value > 0 {
			active++
		}
	}
	value := percent(active, len(flows))
	return model.Report{
		Title:   "Availability",
		Unit:    "%",
		Value:   value,
		Samples: len(flows),
		Status:  Grade(value, e.cfg.Metrics.Tiers.Availability, HigherIsBetter),
		Metadata: map[string]any{
			"active_count": active,
			"zero_count":   len(flows) - active,
			"zero_percent": percent(len(flows)-active, len(flows)),
		},
	}, nil
}

// LevelUptime reports the share of level samples inside [low, full], with
// overflow (> full) broken out as its own bucket.
func (e *Engine) LevelUptime(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	th := e.cfg.Thresholds
	levels := bySensor(inRange(readings, q), model.SensorLevel)
	if len(levels) == 0 {
		return unknownReport("Level Uptime", "%"), nil
	}
	ok, low, overflow := 0, 0, 0
	for _, r := range levels {
		switch {
		case r.Value > th.LevelFull:
			overflow++
		case r.Value < th.LevelLow:
			low++
		default:
			ok++
		}
	}
	value := percent(ok, len(levels))
	return model.Report{
		Title:   "Level Uptime",
		Unit:    "%",
		Value:   value,
		Samples: len(levels),
		Status:  Grade(value, e.cfg.Metrics.Tiers.LevelUptime, HigherIsBetter),
		Metadata: map[string]any{
			"low_count":        low,
			"low_percent":      percent(low, len(levels)),
			"overflow_count":   overflow,
			"overflow_percent": percent(overflow, len(levels)),
		},
	}, nil
}
