package engine

import (
	"sort"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// GroupEvents merges anomalies whose timestamps fall within tolerance of an
// event's start into a single incident. Events come out totally ordered and
// non-overlapping; every anomaly lands in exactly one event. The result is
// independent of the input order.
func GroupEvents(anomalies []model.Anomaly, tolerance time.Duration) []model.Event {
	if len(anomalies) == 0 {
		return nil
	}
	if tolerance < 0 {
		tolerance = 0
	}
	ordered := make([]model.Anomaly, len(anomalies))
	copy(ordered, anomalies)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		if ordered[i].Sensor != ordered[j].Sensor {
			return ordered[i].Sensor < ordered[j].Sensor
		}
		return ordered[i].Rule < ordered[j].Rule
	})

	events := make([]model.Event, 0, len(ordered))
	for _, a := range ordered {
		if n := len(events); n > 0 && a.Timestamp.Sub(events[n-1].Start) <= tolerance {
			events[n-1].Anomalies = append(events[n-1].Anomalies, a)
			continue
		}
		events = append(events, model.Event{Start: a.Timestamp, Anomalies: []model.Anomaly{a}})
	}
	return events
}
