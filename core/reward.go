package core

import "math"

const (
	// DefaultGapScale is the shortage gap at which the gap penalty saturates.
	DefaultGapScale = 2000.0
	// DefaultCostScale is the step cost at which the cost penalty saturates.
	DefaultCostScale = 50000.0

	shapeInner = 0.75
	shapeOuter = 4.0 / 3.0
)

// RewardShape holds the saturation scales of the dual-objective reward.
type RewardShape struct {
	GapScale  float64
	CostScale float64
}

// DefaultRewardShape returns the standard 2000 / 50000 scales.
func DefaultRewardShape() RewardShape {
	return RewardShape{GapScale: DefaultGapScale, CostScale: DefaultCostScale}
}

// Reward combines the two shaped penalty terms. The result lies in [0, 2].
func (s RewardShape) Reward(gap, cost float64) float64 {
	return shapedTerm(gap, s.GapScale) + shapedTerm(cost, s.CostScale)
}

// shapedTerm returns (1 - clip(x/scale, 0, 1)^0.75)^(4/3), which is 1 at
// x <= 0 and 0 once x reaches scale.
func shapedTerm(x, scale float64) float64 {
	if scale <= 0 || math.IsNaN(x) {
		return 0
	}
	r := clip(x/scale, 0, 1)
	return math.Pow(1-math.Pow(r, shapeInner), shapeOuter)
}

// GapMetric is the absolute deviation of procurement from demand.
func GapMetric(demand, total float64) float64 {
	return math.Abs(demand - total)
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
