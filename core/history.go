package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/supplier-sim/model"
)

// Table is a two-column (date, value) projection of one history column.
type Table []model.Record

// Values returns the value column.
func (t Table) Values() []float64 {
	out := make([]float64, len(t))
	for i, r := range t {
		out[i] = r.Value
	}
	return out
}

// History holds the append-only per-episode columns. Every column is seeded
// with a single 0 entry at reset and all columns stay the same length as the
// date column.
type History struct {
	baseline float64
	dates    []time.Time
	purchase []float64
	demand   []float64
	cost     []float64
	shortage []float64
	reward   []float64
}

func newHistory(start time.Time, baseline float64) *History {
	return &History{
		baseline: baseline,
		dates:    []time.Time{start},
		purchase: []float64{0},
		demand:   []float64{0},
		cost:     []float64{0},
		shortage: []float64{0},
		reward:   []float64{0},
	}
}

type stepRecord struct {
	date     time.Time
	purchase float64
	demand   float64
	cost     float64
	shortage float64
	reward   float64
}

func (h *History) append(rec stepRecord) {
	h.dates = append(h.dates, rec.date)
	h.purchase = append(h.purchase, rec.purchase)
	h.demand = append(h.demand, rec.demand)
	h.cost = append(h.cost, rec.cost)
	h.shortage = append(h.shortage, rec.shortage)
	h.reward = append(h.reward, rec.reward)
}

// Baseline returns the shortage baseline the episode was configured with.
// It is kept beside the columns; the shortage column itself starts at 0.
func (h *History) Baseline() float64 {
	return h.baseline
}

// Len returns the number of entries including the seed.
func (h *History) Len() int {
	return len(h.dates)
}

// Check verifies that every value column is aligned with the date column.
func (h *History) Check() error {
	n := len(h.dates)
	cols := []struct {
		name string
		len  int
	}{
		{"purchase", len(h.purchase)},
		{"demand", len(h.demand)},
		{"cost", len(h.cost)},
		{"shortage", len(h.shortage)},
		{"reward", len(h.reward)},
	}
	for _, c := range cols {
		if c.len != n {
			return fmt.Errorf("%s column has %d entries, dates have %d: %w", c.name, c.len, n, ErrHistoryMisaligned)
		}
	}
	return nil
}

// PurchaseTable returns realised purchase totals per step.
func (h *History) PurchaseTable() Table { return h.table(h.purchase) }

// DemandTable returns true demand per step.
func (h *History) DemandTable() Table { return h.table(h.demand) }

// ShortageTable returns the signed shortage gap per step.
func (h *History) ShortageTable() Table { return h.table(h.shortage) }

// ReturnTable returns the raw reward per step.
func (h *History) ReturnTable() Table { return h.table(h.reward) }

// CostTable returns procurement cost per step.
func (h *History) CostTable() Table { return h.table(h.cost) }

// Dates returns a copy of the date column.
func (h *History) Dates() []time.Time {
	return append([]time.Time(nil), h.dates...)
}

func (h *History) table(values []float64) Table {
	out := make(Table, len(values))
	for i, v := range values {
		out[i] = model.Record{Date: h.dates[i], Value: v}
	}
	return out
}
