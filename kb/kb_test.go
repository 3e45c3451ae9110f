package kb

import (
	"errors"
	"sync"
	"testing"

	"github.com/signalsfoundry/supplier-sim/model"
	"gonum.org/v1/gonum/mat"
)

func testRows(n int) []model.PanelRow {
	rows := make([]model.PanelRow, 0, n)
	for d := n - 1; d >= 0; d-- {
		rows = append(rows, model.PanelRow{
			Day:      d,
			Features: mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, float64(d)}),
			Price:    []float64{10, 20},
			Quantity: []float64{5, 5},
			Terminal: d == n-1,
		})
	}
	return rows
}

func TestPanelIndexesByDay(t *testing.T) {
	p, err := NewPanel(testRows(4))
	if err != nil {
		t.Fatalf("NewPanel error: %v", err)
	}
	if p.Len() != 4 {
		t.Fatalf("Len=%d, want 4", p.Len())
	}
	for day := range 4 {
		row, err := p.Row(day)
		if err != nil {
			t.Fatalf("Row(%d) error: %v", day, err)
		}
		if row.Day != day {
			t.Fatalf("Row(%d).Day=%d", day, row.Day)
		}
		if got := row.Features.At(1, 2); got != float64(day) {
			t.Fatalf("Row(%d) feature marker=%v", day, got)
		}
	}
}

func TestPanelRowOutOfRange(t *testing.T) {
	p, err := NewPanel(testRows(2))
	if err != nil {
		t.Fatalf("NewPanel error: %v", err)
	}
	for _, day := range []int{-1, 2, 100} {
		if _, err := p.Row(day); !errors.Is(err, ErrIndexLookup) {
			t.Fatalf("Row(%d) err=%v, want ErrIndexLookup", day, err)
		}
	}
}

func TestPanelRowIsStable(t *testing.T) {
	p, err := NewPanel(testRows(3))
	if err != nil {
		t.Fatalf("NewPanel error: %v", err)
	}
	a, _ := p.Row(1)
	b, _ := p.Row(1)
	if a.Day != b.Day || a.Terminal != b.Terminal || !mat.Equal(a.Features, b.Features) {
		t.Fatalf("repeated Row(1) differs: %+v vs %+v", a, b)
	}
	for i := range a.Price {
		if a.Price[i] != b.Price[i] || a.Quantity[i] != b.Quantity[i] {
			t.Fatalf("repeated Row(1) vectors differ at %d", i)
		}
	}
}

func TestNewPanelRejectsGapsAndDuplicates(t *testing.T) {
	rows := testRows(3)
	rows[0].Day = 1 // now two rows claim day 1 and day 2 is missing
	if _, err := NewPanel(rows); !errors.Is(err, ErrDuplicateDay) {
		t.Fatalf("duplicate day err=%v, want ErrDuplicateDay", err)
	}

	rows = testRows(3)
	rows[0].Day = 7
	if _, err := NewPanel(rows); !errors.Is(err, ErrMissingDay) {
		t.Fatalf("gap err=%v, want ErrMissingDay", err)
	}
}

func TestDemandSchedule(t *testing.T) {
	src := []float64{12, 14}
	d := NewDemandSchedule(src)
	src[0] = 99

	v, err := d.Demand(0)
	if err != nil || v != 12 {
		t.Fatalf("Demand(0)=%v,%v, want 12", v, err)
	}
	if v2, _ := d.Demand(0); v2 != v {
		t.Fatalf("repeated Demand(0)=%v, want %v", v2, v)
	}
	if _, err := d.Demand(2); !errors.Is(err, ErrIndexLookup) {
		t.Fatalf("Demand(2) err=%v, want ErrIndexLookup", err)
	}
}

func TestPanelConcurrentReads(t *testing.T) {
	p, err := NewPanel(testRows(8))
	if err != nil {
		t.Fatalf("NewPanel error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := p.Row(i % 8); err != nil {
				t.Errorf("Row error: %v", err)
			}
			_ = p.Len()
		}(i)
	}
	wg.Wait()
}
