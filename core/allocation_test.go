package core

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestMeritOrderRespectsBoundsAndLength(t *testing.T) {
	r := MeritOrderResolver{}
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(6)
		prices := make([]float64, n)
		caps := make([]float64, n)
		for i := range prices {
			prices[i] = 1 + rng.Float64()*50
			caps[i] = rng.Float64() * 100
		}
		demand := rng.Float64() * 300
		lambda := rng.Float64()

		q, err := r.Resolve(context.Background(), prices, caps, demand, lambda)
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		if len(q) != n {
			t.Fatalf("len(q)=%d, want %d", len(q), n)
		}
		for i := range q {
			if q[i] < 0 || q[i] > caps[i] {
				t.Fatalf("q[%d]=%v outside [0,%v]", i, q[i], caps[i])
			}
		}
	}
}

func TestMeritOrderIsOptimal(t *testing.T) {
	r := MeritOrderResolver{}
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 100; trial++ {
		n := 2 + rng.Intn(4)
		prices := make([]float64, n)
		caps := make([]float64, n)
		for i := range prices {
			prices[i] = 5 + rng.Float64()*30
			caps[i] = 1 + rng.Float64()*20
		}
		demand := rng.Float64() * 60
		lambda := 0.05 + 0.95*rng.Float64()

		q, err := r.Resolve(context.Background(), prices, caps, demand, lambda)
		if err != nil {
			t.Fatalf("Resolve error: %v", err)
		}
		best := Objective(q, prices, demand, lambda)

		// No feasible random perturbation may do better.
		for k := 0; k < 200; k++ {
			cand := make([]float64, n)
			for i := range cand {
				cand[i] = clip(q[i]+(rng.Float64()-0.5)*4, 0, caps[i])
			}
			if got := Objective(cand, prices, demand, lambda); got < best-1e-9 {
				t.Fatalf("trial %d: candidate %v objective %v beats %v objective %v", trial, cand, got, q, best)
			}
		}
	}
}

func TestMeritOrderFullWeightTracksDemand(t *testing.T) {
	q, err := MeritOrderResolver{}.Resolve(context.Background(),
		[]float64{30, 10, 20}, []float64{5, 5, 5}, 12, 1)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	want := []float64{2, 5, 5}
	if floats.Sum(q) != 12 || !floats.Equal(q, want) {
		t.Fatalf("q=%v, want %v (cheapest two full, remainder from the dearest)", q, want)
	}

	q, err = MeritOrderResolver{}.Resolve(context.Background(),
		[]float64{30, 10, 20}, []float64{5, 5, 5}, 8, 1)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if !floats.Equal(q, []float64{0, 5, 3}) {
		t.Fatalf("q=%v, want cheapest-first fill [0 5 3]", q)
	}
}

func TestMeritOrderDefaultLambda(t *testing.T) {
	// Stationary total for the marginal supplier: 12 - 0.1*20/1.8.
	q, err := MeritOrderResolver{}.Resolve(context.Background(),
		[]float64{10, 20}, []float64{5, 50}, 12, DefaultLambdaWeight)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	wantTotal := 12 - 0.1*20/1.8
	if q[0] != 5 || !scalar.EqualWithinAbs(floats.Sum(q), wantTotal, 1e-12) {
		t.Fatalf("q=%v, want q0=5 and total %v", q, wantTotal)
	}
}

func TestMeritOrderZeroLambdaBuysNothing(t *testing.T) {
	q, err := MeritOrderResolver{}.Resolve(context.Background(),
		[]float64{10, 20}, []float64{5, 5}, 12, 0)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if floats.Sum(q) != 0 {
		t.Fatalf("q=%v, want zero purchase", q)
	}
}

func TestResolveRejectsInfeasibleInputs(t *testing.T) {
	cases := map[string]struct {
		prices, caps   []float64
		demand, lambda float64
	}{
		"empty":             {nil, nil, 10, 0.9},
		"length mismatch":   {[]float64{1, 2}, []float64{1}, 10, 0.9},
		"lambda above one":  {[]float64{1}, []float64{1}, 10, 1.5},
		"negative capacity": {[]float64{1}, []float64{-1}, 10, 0.9},
		"nan price":         {[]float64{math.NaN()}, []float64{1}, 10, 0.9},
		"infinite demand":   {[]float64{1}, []float64{1}, math.Inf(1), 0.9},
	}
	for name, tc := range cases {
		_, err := MeritOrderResolver{}.Resolve(context.Background(), tc.prices, tc.caps, tc.demand, tc.lambda)
		if !errors.Is(err, ErrAllocationInfeasible) {
			t.Fatalf("%s: err=%v, want ErrAllocationInfeasible", name, err)
		}
	}
}

func TestValidateAction(t *testing.T) {
	if err := ValidateAction([]int{2, 0}, 3); err != nil {
		t.Fatalf("ValidateAction valid subset: %v", err)
	}
	for _, action := range [][]int{nil, {}, {3}, {-1}, {1, 1}} {
		if err := ValidateAction(action, 3); !errors.Is(err, ErrAllocationInfeasible) {
			t.Fatalf("ValidateAction(%v) err=%v, want ErrAllocationInfeasible", action, err)
		}
	}
}
