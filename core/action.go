package core

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// MaskDecoder maps a single discrete action code onto a supplier subset: bit
// i of the code selects supplier i. Code 0 decodes to the empty subset, which
// Step rejects as infeasible.
type MaskDecoder struct {
	SupplierNum int
	ActionSpace int
}

// NewMaskDecoder validates that every code in [0, actionSpace) fits in
// supplierNum bits.
func NewMaskDecoder(supplierNum, actionSpace int) (MaskDecoder, error) {
	if supplierNum <= 0 || supplierNum > 62 {
		return MaskDecoder{}, fmt.Errorf("mask decoder over %d suppliers: %w", supplierNum, ErrInvalidConfig)
	}
	if actionSpace <= 0 || uint64(actionSpace) > uint64(1)<<supplierNum {
		return MaskDecoder{}, fmt.Errorf("action space %d exceeds 2^%d subsets: %w", actionSpace, supplierNum, ErrInvalidConfig)
	}
	return MaskDecoder{SupplierNum: supplierNum, ActionSpace: actionSpace}, nil
}

// Decode returns the supplier indices selected by code, ascending.
func (d MaskDecoder) Decode(code int) ([]int, error) {
	if code < 0 || code >= d.ActionSpace {
		return nil, fmt.Errorf("action code %d outside [0,%d): %w", code, d.ActionSpace, ErrAllocationInfeasible)
	}
	subset := make([]int, 0, d.SupplierNum)
	for i := 0; i < d.SupplierNum; i++ {
		if code&(1<<i) != 0 {
			subset = append(subset, i)
		}
	}
	return subset, nil
}

// Encode is the inverse of Decode.
func (d MaskDecoder) Encode(subset []int) (int, error) {
	code := 0
	for _, i := range subset {
		if i < 0 || i >= d.SupplierNum {
			return 0, fmt.Errorf("supplier %d outside [0,%d): %w", i, d.SupplierNum, ErrAllocationInfeasible)
		}
		code |= 1 << i
	}
	if code >= d.ActionSpace {
		return 0, fmt.Errorf("subset %v encodes to %d beyond action space %d: %w", subset, code, d.ActionSpace, ErrAllocationInfeasible)
	}
	return code, nil
}

// TopKDecoder maps a per-supplier score vector onto the K best suppliers,
// highest score first. Ties keep the lower index first; NaN scores rank last.
type TopKDecoder struct {
	K int
}

// Decode returns min(K, len(scores)) indices.
func (d TopKDecoder) Decode(scores []float64) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := scores[idx[a]], scores[idx[b]]
		if math.IsNaN(sb) {
			return !math.IsNaN(sa)
		}
		return sa > sb
	})
	k := d.K
	if k > len(idx) {
		k = len(idx)
	}
	if k < 0 {
		k = 0
	}
	return idx[:k]
}

// Softmax normalises scores into a probability vector. The max is subtracted
// first so large scores do not overflow.
func Softmax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	maxScore := floats.Max(scores)
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}
