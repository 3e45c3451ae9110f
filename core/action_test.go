package core

import (
	"errors"
	"math"
	"slices"
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestMaskDecoderRoundTrip(t *testing.T) {
	d, err := NewMaskDecoder(3, 8)
	if err != nil {
		t.Fatalf("NewMaskDecoder error: %v", err)
	}
	subset, err := d.Decode(5)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !slices.Equal(subset, []int{0, 2}) {
		t.Fatalf("Decode(5) = %v, want [0 2]", subset)
	}
	code, err := d.Encode(subset)
	if err != nil || code != 5 {
		t.Fatalf("Encode(%v) = %d,%v, want 5", subset, code, err)
	}

	empty, err := d.Decode(0)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Decode(0) = %v,%v, want empty subset", empty, err)
	}
	if err := ValidateAction(empty, 3); !errors.Is(err, ErrAllocationInfeasible) {
		t.Fatalf("empty decoded subset should be infeasible, got %v", err)
	}
}

func TestMaskDecoderRejects(t *testing.T) {
	if _, err := NewMaskDecoder(3, 9); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("action space 9 over 3 suppliers: err=%v", err)
	}
	d, _ := NewMaskDecoder(3, 4)
	if _, err := d.Decode(4); !errors.Is(err, ErrAllocationInfeasible) {
		t.Fatalf("Decode(4) err=%v", err)
	}
	if _, err := d.Encode([]int{2}); !errors.Is(err, ErrAllocationInfeasible) {
		t.Fatalf("Encode beyond action space err=%v", err)
	}
}

func TestTopKDecoder(t *testing.T) {
	got := TopKDecoder{K: 2}.Decode([]float64{0.1, 0.9, math.NaN(), 0.9, 0.5})
	if !slices.Equal(got, []int{1, 3}) {
		t.Fatalf("Decode = %v, want [1 3]", got)
	}
	if got := (TopKDecoder{K: 10}).Decode([]float64{1, 2}); !slices.Equal(got, []int{1, 0}) {
		t.Fatalf("Decode with K > n = %v", got)
	}
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1000, 1000, 1000})
	if !floats.EqualApprox(p, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, 1e-12) {
		t.Fatalf("Softmax large equal scores = %v", p)
	}
	p = Softmax([]float64{0, math.Log(3)})
	if !floats.EqualApprox(p, []float64{0.25, 0.75}, 1e-12) {
		t.Fatalf("Softmax = %v", p)
	}
}
