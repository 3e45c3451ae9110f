package core

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestRewardGoldenValues(t *testing.T) {
	shape := DefaultRewardShape()

	if got := shape.Reward(0, 0); got != 2.0 {
		t.Fatalf("Reward(0,0) = %v, want 2", got)
	}

	want := 1 + math.Pow(1-math.Pow(120.0/50000.0, 0.75), 4.0/3.0)
	got := shape.Reward(0, 120)
	if !scalar.EqualWithinAbs(got, want, 1e-12) {
		t.Fatalf("Reward(0,120) = %v, want %v", got, want)
	}
	if rounded := math.Round(got*1e4) / 1e4; rounded != 1.9856 {
		t.Fatalf("Reward(0,120) rounded = %v, want 1.9856", rounded)
	}

	// Half the gap scale: (1 - 0.5^0.75)^(4/3) ≈ 0.30004.
	if got := shapedTerm(1000, DefaultGapScale); !scalar.EqualWithinAbs(got, 0.3000359153, 1e-9) {
		t.Fatalf("shapedTerm(1000) = %v", got)
	}
}

func TestRewardBounds(t *testing.T) {
	shape := DefaultRewardShape()
	inputs := []float64{-1e9, -5, 0, 1, 250, 1999, 2000, 2001, 49999, 50000, 1e12, math.Inf(1)}
	for _, gap := range inputs {
		for _, cost := range inputs {
			r := shape.Reward(gap, cost)
			if r < 0 || r > 2 || math.IsNaN(r) {
				t.Fatalf("Reward(%v,%v) = %v outside [0,2]", gap, cost, r)
			}
		}
	}
}

func TestRewardMonotoneAndSaturates(t *testing.T) {
	shape := DefaultRewardShape()

	prev := math.Inf(1)
	for gap := 0.0; gap <= 2500; gap += 50 {
		r := shape.Reward(gap, 100)
		if r > prev {
			t.Fatalf("reward increased with gap at %v: %v > %v", gap, r, prev)
		}
		prev = r
	}
	if shape.Reward(2000, 100) != shape.Reward(1e7, 100) {
		t.Fatalf("gap term did not saturate at the scale")
	}

	prev = math.Inf(1)
	for cost := 0.0; cost <= 60000; cost += 1000 {
		r := shape.Reward(10, cost)
		if r > prev {
			t.Fatalf("reward increased with cost at %v: %v > %v", cost, r, prev)
		}
		prev = r
	}
	if got := shape.Reward(0, 50000); got != 1 {
		t.Fatalf("Reward(0, 50000) = %v, want 1", got)
	}
}

func TestGapMetric(t *testing.T) {
	if GapMetric(12, 15) != 3 || GapMetric(15, 12) != 3 {
		t.Fatal("GapMetric should be the absolute deviation")
	}
}
