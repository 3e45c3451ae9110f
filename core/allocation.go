package core

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DefaultLambdaWeight is the fixed demand-tracking weight used by Step.
const DefaultLambdaWeight = 0.9

// Resolver turns a supplier subset into purchase quantities. prices and
// capacities are restricted to the chosen subset, in action order. The result
// has the same length, with 0 <= q[i] <= capacities[i].
type Resolver interface {
	Resolve(ctx context.Context, prices, capacities []float64, demand, lambda float64) ([]float64, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, prices, capacities []float64, demand, lambda float64) ([]float64, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, prices, capacities []float64, demand, lambda float64) ([]float64, error) {
	return f(ctx, prices, capacities, demand, lambda)
}

// ValidateAction checks a supplier subset against the supplier range. The
// subset must be non-empty, in range and free of duplicates.
func ValidateAction(action []int, supplierNum int) error {
	if len(action) == 0 {
		return fmt.Errorf("empty supplier subset: %w", ErrAllocationInfeasible)
	}
	seen := make(map[int]struct{}, len(action))
	for pos, idx := range action {
		if idx < 0 || idx >= supplierNum {
			return fmt.Errorf("supplier %d at position %d outside [0,%d): %w", idx, pos, supplierNum, ErrAllocationInfeasible)
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("supplier %d repeated at position %d: %w", idx, pos, ErrAllocationInfeasible)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// ValidateProblem checks resolver inputs before dispatch.
func ValidateProblem(prices, capacities []float64, demand, lambda float64) error {
	if len(prices) == 0 {
		return fmt.Errorf("empty supplier subset: %w", ErrAllocationInfeasible)
	}
	if len(prices) != len(capacities) {
		return fmt.Errorf("%d prices for %d capacities: %w", len(prices), len(capacities), ErrAllocationInfeasible)
	}
	if math.IsNaN(lambda) || lambda < 0 || lambda > 1 {
		return fmt.Errorf("lambda weight %v outside [0,1]: %w", lambda, ErrAllocationInfeasible)
	}
	if math.IsNaN(demand) || math.IsInf(demand, 0) {
		return fmt.Errorf("demand %v: %w", demand, ErrAllocationInfeasible)
	}
	for i := range prices {
		if math.IsNaN(prices[i]) || math.IsInf(prices[i], 0) {
			return fmt.Errorf("price %v at position %d: %w", prices[i], i, ErrAllocationInfeasible)
		}
		if math.IsNaN(capacities[i]) || math.IsInf(capacities[i], 0) || capacities[i] < 0 {
			return fmt.Errorf("capacity %v at position %d: %w", capacities[i], i, ErrAllocationInfeasible)
		}
	}
	return nil
}

// MeritOrderResolver solves
//
//	min  λ·(Σq − D)² + (1−λ)·Σ pᵢqᵢ   s.t. 0 ≤ qᵢ ≤ cᵢ
//
// exactly. For a fixed total the cheapest fill is optimal, so suppliers are
// taken in ascending price order and filled until the marginal supplier's
// stationary total D − (1−λ)p/(2λ) is reached. Equal prices fill in action
// order.
type MeritOrderResolver struct{}

// Resolve implements Resolver.
func (MeritOrderResolver) Resolve(_ context.Context, prices, capacities []float64, demand, lambda float64) ([]float64, error) {
	if err := ValidateProblem(prices, capacities, demand, lambda); err != nil {
		return nil, err
	}

	q := make([]float64, len(prices))
	if lambda == 0 {
		// Pure cost minimisation: only suppliers that pay us are worth using.
		for i, p := range prices {
			if p < 0 {
				q[i] = capacities[i]
			}
		}
		return q, nil
	}

	order := make([]int, len(prices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return prices[order[a]] < prices[order[b]] })

	total := 0.0
	for _, i := range order {
		target := demand - (1-lambda)*prices[i]/(2*lambda)
		if target <= total {
			break
		}
		take := math.Min(capacities[i], target-total)
		q[i] = take
		total += take
		if take < capacities[i] {
			break
		}
	}
	return q, nil
}

// Objective evaluates the resolver objective for q.
func Objective(q, prices []float64, demand, lambda float64) float64 {
	dev := floats.Sum(q) - demand
	return lambda*dev*dev + (1-lambda)*floats.Dot(q, prices)
}
