package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// Static rule names.
const (
	RuleOvertemperature = "overtemperature"
	RuleInactivity      = "inactivity"
	RuleLowLevel        = "low_level"
	RuleHighPower       = "high_power"
)

// CheckStatic evaluates every reading against the fixed physical limits and
// returns one static anomaly per violation, ordered by timestamp. Purely
// functional: identical input and thresholds always yield identical output.
func CheckStatic(readings []model.Reading, th config.ThresholdsConfig) []model.Anomaly {
	ordered := sortedByTime(readings)
	anomalies := make([]model.Anomaly, 0)

	var inactiveSince time.Time
	haveRun := false

	for _, r := range ordered {
		switch r.Sensor {
		case model.SensorTemperature:
			dev := r.Value - th.TemperatureSetpoint
			if dev > th.TemperatureTolerance || dev < -th.TemperatureTolerance {
				anomalies = append(anomalies, model.Anomaly{
					Timestamp: r.Timestamp,
					Sensor:    r.Sensor,
					Value:     r.Value,
					Kind:      model.KindStatic,
					Rule:      RuleOvertemperature,
					Detail: fmt.Sprintf("temperature %.2f°C outside ±%.1f°C of setpoint %.1f°C",
						r.Value, th.TemperatureTolerance, th.TemperatureSetpoint),
				})
			}

		case model.SensorFlow:
			// A single low reading is not an anomaly; the run must persist
			// past the configured duration. The first flagged reading is the
			// one that crosses it.
			if r.Value <= th.FlowInactivityLevel {
				if !haveRun {
					inactiveSince = r.Timestamp
					haveRun = true
				}
				if r.Timestamp.Sub(inactiveSince) >= th.FlowInactivityFor {
					anomalies = append(anomalies, model.Anomaly{
						Timestamp: r.Timestamp,
						Sensor:    r.Sensor,
						Value:     r.Value,
						Kind:      model.KindStatic,
						Rule:      RuleInactivity,
						Detail: fmt.Sprintf("flow ≤%.3f L/min for %s",
							th.FlowInactivityLevel, r.Timestamp.Sub(inactiveSince)),
					})
				}
			} else {
				haveRun = false
			}

		case model.SensorLevel:
			if r.Value < th.LevelLow {
				anomalies = append(anomalies, model.Anomaly{
					Timestamp: r.Timestamp,
					Sensor:    r.Sensor,
					Value:     r.Value,
					Kind:      model.KindStatic,
					Rule:      RuleLowLevel,
					Detail: fmt.Sprintf("level %.1f%% below %.0f%%",
						r.Value*100, th.LevelLow*100),
				})
			}

		case model.SensorPower:
			if r.Value > th.PowerHigh {
				anomalies = append(anomalies, model.Anomaly{
					Timestamp: r.Timestamp,
					Sensor:    r.Sensor,
					Value:     r.Value,
					Kind:      model.KindStatic,
					Rule:      RuleHighPower,
					Detail: fmt.Sprintf("power %.2f kW above %.2f kW",
						r.Value, th.PowerHigh),
				})
			}
		}
	}
	return anomalies
}

// WithinStaticBounds reports whether a reading sits inside its sensor's
// fixed limits; used by the response_index recovery policy.
func WithinStaticBounds(r model.Reading, th config.ThresholdsConfig) bool {
	switch r.Sensor {
	case model.SensorTemperature:
		dev := r.Value - th.TemperatureSetpoint
		return dev <= th.TemperatureTolerance && dev >= -th.TemperatureTolerance
	case model.SensorFlow:
		return r.Value > th.FlowInactivityLevel
	case model.SensorLevel:
		return r.Value >= th.LevelLow
	case model.SensorPower:
		return r.Value <= th.PowerHigh
	}
	return true
}

func sortedByTime(readings []model.Reading) []model.Reading {
	out := make([]model.Reading, len(readings))
	copy(out, readings)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Sensor < out[j].Sensor
	})
	return out
}
