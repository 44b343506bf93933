package engine

import "math"

// rollingWindow keeps the most recent N values of one sensor and their
// running sum and sum of squares, so mean/std come out in O(1) per point.
// Values match a naive recomputation over the same trailing slice.
type rollingWindow struct {
	values []float64
	head   int
	count  int
	sum    float64
	sumSq  float64
}

func newRollingWindow(size int) *rollingWindow {
	return &rollingWindow{values: make([]float64, size)}
}

func (w *rollingWindow) Add(v float64) {
	if w.count == len(w.values) {
		old := w.values[w.head]
		w.sum -= old
		w.sumSq -= old * old
	} else {
		w.count++
	}
	w.values[w.head] = v
	w.head = (w.head + 1) % len(w.values)
	w.sum += v
	w.sumSq += v * v
}

func (w *rollingWindow) Count() int {
	return w.count
}

// MeanStd returns the mean and sample standard deviation of the window.
// Requires at least two values; callers gate on Count.
func (w *rollingWindow) MeanStd() (mean, std float64) {
	n := float64(w.count)
	mean = w.sum / n
	variance := (w.sumSq - n*mean*mean) / (n - 1)
	if variance < 0 {
		// float cancellation on near-constant windows
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
