package engine

import (
	"math"
	"math/rand"
	"testing"
)

func naiveMeanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}

func TestRollingWindowMatchesNaive(t *testing.T) {
	const size = 8
	win := newRollingWindow(size)
	rng := rand.New(rand.NewSource(99))
	var history []float64
	for i := 0; i < 200; i++ {
		v := rng.NormFloat64()*3 + 50
		win.Add(v)
		history = append(history, v)
		if win.Count() < 2 {
			continue
		}
		tail := history
		if len(tail) > size {
			tail = tail[len(tail)-size:]
		}
		wantMean, wantStd := naiveMeanStd(tail)
		gotMean, gotStd := win.MeanStd()
		if math.Abs(gotMean-wantMean) > 1e-9 {
			t.Fatalf("step %d: mean %v, want %v", i, gotMean, wantMean)
		}
		if math.Abs(gotStd-wantStd) > 1e-9 {
			t.Fatalf("step %d: std %v, want %v", i, gotStd, wantStd)
		}
	}
}

func TestRollingWindowConstantSeries(t *testing.T) {
	win := newRollingWindow(4)
	for i := 0; i < 10; i++ {
		win.Add(7.5)
	}
	mean, std := win.MeanStd()
	if mean != 7.5 {
		t.Fatalf("mean = %v", mean)
	}
	if std != 0 {
		t.Fatalf("std = %v, want 0", std)
	}
}

func TestRollingWindowCountCapped(t *testing.T) {
	win := newRollingWindow(3)
	for i := 0; i < 10; i++ {
		win.Add(float64(i))
		if win.Count() > 3 {
			t.Fatalf("count %d exceeds capacity", win.Count())
		}
	}
	mean, _ := win.MeanStd()
	if mean != 8 { // last three values are 7, 8, 9
		t.Fatalf("mean = %v, want 8", mean)
	}
}
