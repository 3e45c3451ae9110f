// Package policy holds baseline agents used to drive rollouts.
package policy

import (
	"fmt"
	"math/rand"

	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/model"
)

// Policy picks a supplier subset for the current panel row.
type Policy interface {
	Name() string
	Act(row model.PanelRow) ([]int, error)
}

// New builds a named policy. k bounds the subset size of the cheapest and
// softmax policies; seed makes the stochastic ones reproducible.
func New(name string, supplierNum, actionSpace, k int, seed int64) (Policy, error) {
	switch name {
	case "random":
		return NewRandom(supplierNum, actionSpace, seed)
	case "cheapest":
		return Cheapest{K: k}, nil
	case "softmax":
		return NewSoftmax(k, 1, seed), nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// Random draws a uniform non-empty action code and decodes it as a mask.
type Random struct {
	decoder core.MaskDecoder
	rng     *rand.Rand
}

// NewRandom seeds a Random policy over the given action space.
func NewRandom(supplierNum, actionSpace int, seed int64) (*Random, error) {
	dec, err := core.NewMaskDecoder(supplierNum, actionSpace)
	if err != nil {
		return nil, err
	}
	if actionSpace < 2 {
		return nil, fmt.Errorf("action space %d has no non-empty subset: %w", actionSpace, core.ErrInvalidConfig)
	}
	return &Random{decoder: dec, rng: rand.New(rand.NewSource(seed))}, nil
}

func (p *Random) Name() string { return "random" }

// Act ignores the row.
func (p *Random) Act(model.PanelRow) ([]int, error) {
	code := 1 + p.rng.Intn(p.decoder.ActionSpace-1)
	return p.decoder.Decode(code)
}

// Cheapest buys from the K lowest-priced suppliers.
type Cheapest struct {
	K int
}

func (Cheapest) Name() string { return "cheapest" }

func (p Cheapest) Act(row model.PanelRow) ([]int, error) {
	scores := make([]float64, len(row.Price))
	for i, price := range row.Price {
		scores[i] = -price
	}
	return core.TopKDecoder{K: p.K}.Decode(scores), nil
}

// Softmax samples K distinct suppliers with probability proportional to
// softmax(-price / Temperature).
type Softmax struct {
	K           int
	Temperature float64
	rng         *rand.Rand
}

// NewSoftmax seeds a Softmax policy. Non-positive temperatures become 1.
func NewSoftmax(k int, temperature float64, seed int64) *Softmax {
	if temperature <= 0 {
		temperature = 1
	}
	return &Softmax{K: k, Temperature: temperature, rng: rand.New(rand.NewSource(seed))}
}

func (p *Softmax) Name() string { return "softmax" }

func (p *Softmax) Act(row model.PanelRow) ([]int, error) {
	scores := make([]float64, len(row.Price))
	for i, price := range row.Price {
		scores[i] = -price / p.Temperature
	}
	probs := core.Softmax(scores)

	k := p.K
	if k > len(probs) {
		k = len(probs)
	}
	picked := make([]int, 0, k)
	for len(picked) < k {
		var total float64
		for _, w := range probs {
			total += w
		}
		if total <= 0 {
			break
		}
		u := p.rng.Float64() * total
		idx := len(probs) - 1
		for i, w := range probs {
			if u < w {
				idx = i
				break
			}
			u -= w
		}
		for probs[idx] == 0 {
			idx = (idx + len(probs) - 1) % len(probs)
		}
		picked = append(picked, idx)
		probs[idx] = 0
	}
	return picked, nil
}
