package engine

import (
	"math"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// classRule pairs a predicate with the cause it implies. Rules are evaluated
// in order; the first match wins, so more specific causes go first.
type classRule struct {
	match func(model.Anomaly) bool
	cause model.Classification
}

var classRules = []classRule{
	{
		// flow spiking above its local mean with no matching demand change
		match: func(a model.Anomaly) bool {
			return a.Sensor == model.SensorFlow && a.Value > a.Mean
		},
		cause: model.CauseLeakage,
	},
	{
		// implausibly large temperature jumps point at the sensor itself
		match: func(a model.Anomaly) bool {
			return a.Sensor == model.SensorTemperature && math.Abs(a.Value-a.Mean) > 5
		},
		cause: model.CauseSensorError,
	},
	{
		match: func(a model.Anomaly) bool {
			return a.Sensor == model.SensorPower && a.Value > a.Mean
		},
		cause: model.CauseOveruse,
	},
}

// ClassifyAnomaly assigns a probable cause to an adaptive anomaly. Total:
// every input maps to exactly one label, with "other" as the catch-all.
func ClassifyAnomaly(a model.Anomaly) model.Classification {
	for _, rule := range classRules {
		if rule.match(a) {
			return rule.cause
		}
	}
	return model.CauseOther
}

// ClassifyAll returns a copy of the anomalies with Classification filled in.
func ClassifyAll(anomalies []model.Anomaly) []model.Anomaly {
	out := make([]model.Anomaly, len(anomalies))
	for i, a := range anomalies {
		a.Classification = ClassifyAnomaly(a)
		out[i] = a
	}
	return out
}
