package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/supplier-sim/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary is the terminal report of an episode. Means run over the whole
// history, seed entries included.
type Summary struct {
	Steps           int
	LogMeanCost     model.Stat // log10(mean cost)
	LogMeanShortage model.Stat // log10(mean shortage gap)
	AvgUnitPrice    model.Stat // Σcost / Σpurchase
	TotalCost       float64
	TotalPurchase   float64
	// Warnings lists every statistic that fell back to a sentinel; each
	// wraps ErrDegenerateSummary.
	Warnings []error
}

// Degenerate reports whether any statistic is undefined.
func (s Summary) Degenerate() bool {
	return len(s.Warnings) > 0
}

// Summarize computes the terminal statistics over h.
func Summarize(h *History) Summary {
	s := Summary{
		Steps:         h.Len() - 1,
		TotalCost:     floats.Sum(h.cost),
		TotalPurchase: floats.Sum(h.purchase),
	}
	var warn error
	s.LogMeanCost, warn = logMean("mean cost", h.cost)
	s.addWarning(warn)
	s.LogMeanShortage, warn = logMean("mean shortage", h.shortage)
	s.addWarning(warn)

	if s.TotalPurchase == 0 {
		s.AvgUnitPrice = model.Undefined(math.NaN())
		s.addWarning(fmt.Errorf("average unit price over zero purchases: %w", ErrDegenerateSummary))
	} else {
		s.AvgUnitPrice = model.Defined(s.TotalCost / s.TotalPurchase)
	}
	return s
}

func (s *Summary) addWarning(err error) {
	if err != nil {
		s.Warnings = append(s.Warnings, err)
	}
}

func logMean(name string, values []float64) (model.Stat, error) {
	m := stat.Mean(values, nil)
	switch {
	case m == 0:
		return model.Undefined(math.Inf(-1)), fmt.Errorf("log10 of zero %s: %w", name, ErrDegenerateSummary)
	case m < 0 || math.IsNaN(m):
		return model.Undefined(math.NaN()), fmt.Errorf("log10 of %s %v: %w", name, m, ErrDegenerateSummary)
	}
	return model.Defined(math.Log10(m)), nil
}
