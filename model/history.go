package model

import (
	"math"
	"time"
)

// Record is a single (date, value) pair of an exported history column.
type Record struct {
	Date  time.Time
	Value float64
}

// Stat is a summary statistic that may be undefined for degenerate histories.
// Value carries -Inf or NaN when Valid is false so numeric consumers still see
// an explicit sentinel rather than a silent zero.
type Stat struct {
	Value float64
	Valid bool
}

// Defined wraps a finite value.
func Defined(v float64) Stat {
	return Stat{Value: v, Valid: !math.IsNaN(v) && !math.IsInf(v, 0)}
}

// Undefined wraps a sentinel value (NaN or ±Inf).
func Undefined(sentinel float64) Stat {
	return Stat{Value: sentinel}
}
