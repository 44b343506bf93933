package model

import (
	"fmt"
	"time"
)

// Sensor identifies one of the dispenser's measurement channels.
type Sensor string

const (
	SensorTemperature Sensor = "temperature" // °C
	SensorFlow        Sensor = "flow"        // L/min
	SensorLevel       Sensor = "level"       // tank fraction 0..1
	SensorPower       Sensor = "power"       // kW
)

// Sensors lists every known sensor in a fixed order.
func Sensors() []Sensor {
	return []Sensor{SensorTemperature, SensorFlow, SensorLevel, SensorPower}
}

// ParseSensor validates a sensor name coming from an external caller.
func ParseSensor(name string) (Sensor, error) {
	s := Sensor(name)
	for _, known := range Sensors() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown sensor %q", name)
}

// Reading is one timestamped observation from one sensor. Immutable once
// stored; sensors share a timeline but are sampled independently.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Sensor    Sensor    `json:"sensor"`
	Value     float64   `json:"value"`
}

type AnomalyKind string

const (
	KindStatic   AnomalyKind = "static"
	KindAdaptive AnomalyKind = "adaptive"
)

// Classification is the probable cause assigned to an adaptive anomaly.
type Classification string

const (
	CauseLeakage     Classification = "leakage"
	CauseSensorError Classification = "sensor_error"
	CauseOveruse     Classification = "overuse"
	CauseOther       Classification = "other"
)

// Anomaly is a single flagged reading. Mean/Std/ZScore are populated only for
// adaptive anomalies; Classification only after the classifier ran.
type Anomaly struct {
	Timestamp      time.Time      `json:"timestamp"`
	Sensor         Sensor         `json:"sensor"`
	Value          float64        `json:"value"`
	Kind           AnomalyKind    `json:"kind"`
	Rule           string         `json:"rule"`
	Detail         string         `json:"detail"`
	Mean           float64        `json:"mean,omitempty"`
	Std            float64        `json:"std,omitempty"`
	ZScore         float64        `json:"zscore,omitempty"`
	Classification Classification `json:"classification,omitempty"`
}

// Event groups anomalies whose timestamps fall within the grouper tolerance;
// one event counts as one incident for interval metrics.
type Event struct {
	Start     time.Time `json:"start"`
	Anomalies []Anomaly `json:"anomalies"`
}

// SensorCounts reports how many constituent anomalies each sensor contributed.
func (e Event) SensorCounts() map[Sensor]int {
	out := make(map[Sensor]int, len(e.Anomalies))
	for _, a := range e.Anomalies {
		out[a.Sensor]++
	}
	return out
}

// Report is the output of a single metric computation. Field names are stable
// across calls so clients can bind gauges to them.
type Report struct {
	Title         string         `json:"title"`
	Unit          string         `json:"unit"`
	Value         float64        `json:"value"`
	ExpectedValue float64        `json:"expected_value,omitempty"`
	Samples       int            `json:"samples"`
	Status        string         `json:"status"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
