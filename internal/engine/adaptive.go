package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/alfonsopalomares/digital-twin/internal/model"
)

// AdaptiveOptions parametrizes one rolling z-score detection pass.
type AdaptiveOptions struct {
	Window     int
	ZThreshold float64
	MinSamples int          // minimum window population before scoring, >= 2
	Sensor     model.Sensor // empty means all sensors
}

// DetectAdaptive flags readings whose value deviates from the trailing
// window's mean by more than ZThreshold standard deviations. The window holds
// the Window values preceding the point under test (never the point itself);
// a point enters the window only after it was scored. σ == 0 never flags.
// Output is ordered by timestamp and fully determined by the input.
func DetectAdaptive(readings []model.Reading, opts AdaptiveOptions) ([]model.Anomaly, error) {
	if opts.Window <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadWindow, opts.Window)
	}
	if opts.Sensor != "" {
		if _, err := model.ParseSensor(string(opts.Sensor)); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, opts.Sensor)
		}
	}
	if opts.ZThreshold <= 0 {
		opts.ZThreshold = 2.0
	}
	if opts.MinSamples < 2 {
		opts.MinSamples = 2
	}

	ordered := sortedByTime(readings)
	anomalies := make([]model.Anomaly, 0)

	for _, sensor := range model.Sensors() {
		if opts.Sensor != "" && sensor != opts.Sensor {
			continue
		}
		win := newRollingWindow(opts.Window)
		for _, r := range ordered {
			if r.Sensor != sensor {
				continue
			}
			if win.Count() >= opts.MinSamples {
				mean, std := win.MeanStd()
				if std > 0 {
					z := (r.Value - mean) / std
					if math.Abs(z) > opts.ZThreshold {
						anomalies = append(anomalies, model.Anomaly{
							Timestamp: r.Timestamp,
							Sensor:    r.Sensor,
							Value:     r.Value,
							Kind:      model.KindAdaptive,
							Rule:      "zscore",
							Detail: fmt.Sprintf("%s %.3f deviates %.2fσ from local mean %.3f",
								r.Sensor, r.Value, math.Abs(z), mean),
							Mean:   mean,
							Std:    std,
							ZScore: z,
						})
					}
				}
			}
			win.Add(r.Value)
		}
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if !anomalies[i].Timestamp.Equal(anomalies[j].Timestamp) {
			return anomalies[i].Timestamp.Before(anomalies[j].Timestamp)
		}
		return anomalies[i].Sensor < anomalies[j].Sensor
	})
	return anomalies, nil
}
