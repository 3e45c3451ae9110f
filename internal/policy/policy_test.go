package policy

import (
	"slices"
	"testing"

	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/model"
)

var row = model.PanelRow{Price: []float64{30, 10, 20, 40}, Quantity: []float64{5, 5, 5, 5}}

func TestCheapestPicksLowestPrices(t *testing.T) {
	got, err := Cheapest{K: 2}.Act(row)
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if !slices.Equal(got, []int{1, 2}) {
		t.Fatalf("Act = %v, want [1 2]", got)
	}
}

func TestRandomIsSeededAndFeasible(t *testing.T) {
	a, err := NewRandom(4, 16, 42)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	b, _ := NewRandom(4, 16, 42)
	for i := 0; i < 50; i++ {
		x, err := a.Act(row)
		if err != nil {
			t.Fatalf("Act: %v", err)
		}
		y, _ := b.Act(row)
		if !slices.Equal(x, y) {
			t.Fatalf("same seed diverged at draw %d: %v vs %v", i, x, y)
		}
		if err := core.ValidateAction(x, 4); err != nil {
			t.Fatalf("infeasible draw %v: %v", x, err)
		}
	}
}

func TestRandomRejectsTrivialActionSpace(t *testing.T) {
	if _, err := NewRandom(4, 1, 1); err == nil {
		t.Fatalf("expected error for action space with only the empty subset")
	}
}

func TestSoftmaxSamplesDistinctSuppliers(t *testing.T) {
	p := NewSoftmax(3, 5, 7)
	for i := 0; i < 50; i++ {
		got, err := p.Act(row)
		if err != nil {
			t.Fatalf("Act: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("Act = %v, want 3 suppliers", got)
		}
		if err := core.ValidateAction(got, 4); err != nil {
			t.Fatalf("Act = %v: %v", got, err)
		}
	}
}

func TestSoftmaxFavoursCheapSuppliers(t *testing.T) {
	p := NewSoftmax(1, 2, 3)
	counts := make([]int, 4)
	for i := 0; i < 500; i++ {
		got, _ := p.Act(row)
		counts[got[0]]++
	}
	if counts[1] <= counts[3] {
		t.Fatalf("cheapest supplier drawn %d times, most expensive %d", counts[1], counts[3])
	}
}

func TestNewByName(t *testing.T) {
	for _, name := range []string{"random", "cheapest", "softmax"} {
		p, err := New(name, 4, 16, 2, 1)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		if p.Name() != name {
			t.Fatalf("Name = %q, want %q", p.Name(), name)
		}
	}
	if _, err := New("greedy", 4, 16, 2, 1); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
