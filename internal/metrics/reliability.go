package metrics

import (
	"sort"
	"time"

	"github.com/alfonsopalomares/digital-twin/internal/config"
	"github.com/alfonsopalomares/digital-twin/internal/engine"
	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// MTBA reports the mean minutes between adaptive anomaly events. Anomalies
// are grouped into events first, so a burst counts once. Fewer than two
// events cannot define an interval.
func (e *Engine) MTBA(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	scoped := inRange(readings, q)
	anomalies, err := engine.DetectAdaptive(scoped, engine.AdaptiveOptions{
		Window:     e.window(q),
		ZThreshold: e.cfg.Detection.ZThreshold,
		MinSamples: e.cfg.Detection.MinWindowSamples,
		Sensor:     q.Sensor,
	})
	if err != nil {
		return model.Report{}, err
	}
	events := engine.GroupEvents(anomalies, e.cfg.Detection.GroupTolerance)
	mean, intervals := meanEventGap(events)
	if intervals == 0 {
		return unknownReport("MTBA", "min"), nil
	}
	return model.Report{
		Title:   "MTBA",
		Unit:    "min",
		Value:   round2(mean),
		Samples: len(scoped),
		Status:  Grade(mean, e.cfg.Metrics.Tiers.MTBA, HigherIsBetter),
		Metadata: map[string]any{
			"events":    len(events),
			"anomalies": len(anomalies),
			"intervals": intervals,
		},
	}, nil
}

// MTBF is MTBA over the static checker: mean minutes between hard failures.
func (e *Engine) MTBF(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	scoped := inRange(readings, q)
	anomalies := engine.CheckStatic(scoped, e.cfg.Thresholds)
	events := engine.GroupEvents(anomalies, e.cfg.Detection.GroupTolerance)
	mean, intervals := meanEventGap(events)
	if intervals == 0 {
		return unknownReport("MTBF", "min"), nil
	}
	return model.Report{
		Title:   "MTBF",
		Unit:    "min",
		Value:   round2(mean),
		Samples: len(scoped),
		Status:  Grade(mean, e.cfg.Metrics.Tiers.MTBF, HigherIsBetter),
		Metadata: map[string]any{
			"events":    len(events),
			"anomalies": len(anomalies),
			"intervals": intervals,
		},
	}, nil
}

// FailuresCount reports the raw number of static violations in range, with a
// per-rule breakdown.
func (e *Engine) FailuresCount(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	scoped := inRange(readings, q)
	if len(scoped) == 0 {
		return unknownReport("Failures Count", "count"), nil
	}
	anomalies := engine.CheckStatic(scoped, e.cfg.Thresholds)
	byRule := map[string]int{}
	for _, a := range anomalies {
		byRule[a.Rule]++
	}
	count := float64(len(anomalies))
	return model.Report{
		Title:   "Failures Count",
		Unit:    "count",
		Value:   count,
		Samples: len(scoped),
		Status:  Grade(count, e.cfg.Metrics.Tiers.FailuresCount, LowerIsBetter),
		Metadata: map[string]any{
			"by_rule": byRule,
			"events":  len(engine.GroupEvents(anomalies, e.cfg.Detection.GroupTolerance)),
		},
	}, nil
}

// ResponseIndex reports the mean minutes from a failure event's start until
// its sensor recovers. Under the static_bounds policy recovery means the next
// same-sensor reading back inside the fixed limits; under next_reading any
// later same-sensor reading counts. Events that never recover in range are
// excluded and reported in metadata.
func (e *Engine) ResponseIndex(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	scoped := inRange(readings, q)
	anomalies := engine.CheckStatic(scoped, e.cfg.Thresholds)
	events := engine.GroupEvents(anomalies, e.cfg.Detection.GroupTolerance)
	if len(events) == 0 {
		return unknownReport("Response Index", "min"), nil
	}

	var total float64
	recovered, unresolved := 0, 0
	for _, ev := range events {
		first := ev.Anomalies[0]
		found := false
		for _, r := range scoped {
			if r.Sensor != first.Sensor || !r.Timestamp.After(ev.Start) {
				continue
			}
			if e.cfg.Detection.RecoveryPolicy != config.RecoveryNextReading &&
				!engine.WithinStaticBounds(r, e.cfg.Thresholds) {
				continue
			}
			total += r.Timestamp.Sub(ev.Start).Minutes()
			recovered++
			found = true
			break
		}
		if !found {
			unresolved++
		}
	}
	if recovered == 0 {
		return unknownReport("Response Index", "min"), nil
	}
	mean := finite(total / float64(recovered))
	return model.Report{
		Title:   "Response Index",
		Unit:    "min",
		Value:   round2(mean),
		Samples: len(scoped),
		Status:  Grade(mean, e.cfg.Metrics.Tiers.ResponseIndex, LowerIsBetter),
		Metadata: map[string]any{
			"events":     len(events),
			"recovered":  recovered,
			"unresolved": unresolved,
			"policy":     e.cfg.Detection.RecoveryPolicy,
		},
	}, nil
}

// ResponseTime measures how long the machine takes to serve: seconds from a
// selection tick (power above its activity threshold) to the first following
// tick with active flow. Readings are grouped into ticks by timestamp first.
func (e *Engine) ResponseTime(readings []model.Reading, q Query) (model.Report, error) {
	if err := e.validate(q); err != nil {
		return model.Report{}, err
	}
	mc := e.cfg.Metrics
	scoped := inRange(readings, q)
	ticks := groupTicks(scoped)
	if len(ticks) == 0 {
		return unknownReport("Average Response Time", "sec"), nil
	}

	buckets := map[string]int{"instant": 0, "fast": 0, "normal": 0, "slow": 0, "very_slow": 0}
	var deltas []float64
	var pending *tick
	for i := range ticks {
		t := &ticks[i]
		flow, hasFlow := t.values[model.SensorFlow]
		power, hasPower := t.values[model.SensorPower]
		if pending != nil && hasFlow && flow > mc.FlowActiveLevel {
			sec := t.at.Sub(pending.at).Seconds()
			deltas = append(deltas, sec)
			buckets[responseBucket(sec)]++
			pending = nil
		}
		if pending == nil && hasPower && power > mc.PowerActiveLevel {
			pending = t
		}
	}
	if len(deltas) == 0 {
		return unknownReport("Average Response Time", "sec"), nil
	}
	var sum float64
	for _, d := range deltas {
		sum += d
	}
	mean := finite(sum / float64(len(deltas)))
	meta := map[string]any{"services": len(deltas)}
	for name, n := range buckets {
		meta[name+"_count"] = n
		meta[name+"_percent"] = percent(n, len(deltas))
	}
	return model.Report{
		Title:         "Average Response Time",
		Unit:          "sec",
		Value:         round2(mean),
		ExpectedValue: 5.0,
		Samples:       len(scoped),
		Status:        Grade(mean, mc.Tiers.ResponseTime, LowerIsBetter),
		Metadata:      meta,
	}, nil
}

func responseBucket(sec float64) string {
	switch {
	case sec <= 1:
		return "instant"
	case sec <= 3:
		return "fast"
	case sec <= 5:
		return "normal"
	case sec <= 10:
		return "slow"
	}
	return "very_slow"
}

type tick struct {
	at     time.Time
	values map[model.Sensor]float64
}

// meanEventGap averages the minutes between consecutive event starts.
func meanEventGap(events []model.Event) (float64, int) {
	if len(events) < 2 {
		return 0, 0
	}
	var total float64
	for i := 1; i < len(events); i++ {
		total += events[i].Start.Sub(events[i-1].Start).Minutes()
	}
	n := len(events) - 1
	return finite(total / float64(n)), n
}

// groupTicks folds readings sharing a timestamp into one frame per instant.
func groupTicks(readings []model.Reading) []tick {
	byTime := map[int64]map[model.Sensor]float64{}
	for _, r := range readings {
		k := r.Timestamp.UnixNano()
		if byTime[k] == nil {
			byTime[k] = map[model.Sensor]float64{}
		}
		byTime[k][r.Sensor] = r.Value
	}
	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]tick, 0, len(keys))
	for _, k := range keys {
		out = append(out, tick{at: time.Unix(0, k), values: byTime[k]})
	}
	return out
}
