package model

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// PanelRow is one day of supplier attributes.
// Features is supplier_num × feature_dim; Price and Quantity are indexed by
// the same supplier ordering.
type PanelRow struct {
	Day      int
	Date     time.Time // zero when the source carries no dates
	Features *mat.Dense
	Price    []float64
	Quantity []float64 // per-supplier available capacity
	Terminal bool      // sub-period boundary marker from the data
}

// SupplierCount returns the number of suppliers described by the row.
func (r PanelRow) SupplierCount() int {
	return len(r.Price)
}

// FeatureDim returns the number of feature columns, or 0 when no features are set.
func (r PanelRow) FeatureDim() int {
	if r.Features == nil {
		return 0
	}
	_, c := r.Features.Dims()
	return c
}
