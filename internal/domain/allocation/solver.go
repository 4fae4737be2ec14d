package allocation

import (
	"errors"
	"fmt"
	"math"

	"github.com/sawpanic/fisr/internal/domain"
)

// ErrEmptyUniverse is returned when there is nothing to allocate to
var ErrEmptyUniverse = errors.New("allocation: universe is empty")

// AnchorPolicy keeps a minimum weight on one designated instrument
type AnchorPolicy struct {
	Ticker    string  `yaml:"anchor"`
	Threshold float64 `yaml:"anchor_threshold"`
	MinWeight float64 `yaml:"anchor_min_weight"`
}

// DefaultAnchorPolicy returns a disabled policy with the standard 10%/5% parameters
func DefaultAnchorPolicy() AnchorPolicy {
	return AnchorPolicy{Threshold: 0.10, MinWeight: 0.05}
}

// Enabled reports whether an anchor ticker is configured
func (p AnchorPolicy) Enabled() bool {
	return p.Ticker != ""
}

// Solver produces duration-matching weights by bracketing and linear interpolation
type Solver struct {
	anchor AnchorPolicy
}

// NewSolver creates a solver with the given diversification floor
func NewSolver(anchor AnchorPolicy) *Solver {
	return &Solver{anchor: anchor}
}

// Solve returns a weight for every instrument in the universe. Weights are non-negative and sum to 1.
func (s *Solver) Solve(target float64, universe domain.Universe) (domain.WeightVector, error) {
	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return nil, fmt.Errorf("allocation: invalid target duration %v", target)
	}

	sorted := domain.NewUniverse(universe)
	weights := make(domain.WeightVector, len(sorted))
	for _, inst := range sorted {
		weights[inst.Ticker] = 0
	}

	if len(sorted) == 1 {
		weights[sorted[0].Ticker] = 1.0
		return weights, nil
	}

	low, high := bracket(sorted, target)
	if high.Duration == low.Duration {
		weights[low.Ticker] = 1.0
	} else {
		frac := (target - low.Duration) / (high.Duration - low.Duration)
		frac = math.Max(0, math.Min(1, frac))
		weights[high.Ticker] = frac
		weights[low.Ticker] = 1 - frac
	}

	if s.anchor.Enabled() {
		s.applyAnchor(weights)
	}

	normalize(weights)
	return weights, nil
}

// bracket finds the adjacent pair straddling target, clamping to the boundary pair when outside the range
func bracket(sorted domain.Universe, target float64) (domain.Instrument, domain.Instrument) {
	n := len(sorted)
	if target <= sorted[0].Duration {
		return sorted[0], sorted[1]
	}
	if target >= sorted[n-1].Duration {
		return sorted[n-2], sorted[n-1]
	}
	for i := 0; i < n-1; i++ {
		if sorted[i].Duration <= target && target <= sorted[i+1].Duration {
			return sorted[i], sorted[i+1]
		}
	}
	return sorted[n-2], sorted[n-1]
}

func (s *Solver) applyAnchor(weights domain.WeightVector) {
	w, ok := weights[s.anchor.Ticker]
	if !ok || w >= s.anchor.Threshold {
		return
	}
	if w < s.anchor.MinWeight {
		weights[s.anchor.Ticker] = s.anchor.MinWeight
	}
}

// normalize rescales positive weights to sum to 1 and forces the residual onto the largest weight
func normalize(weights domain.WeightVector) {
	total := weights.Sum()
	if total <= 0 {
		return
	}
	var largest string
	for k, v := range weights {
		weights[k] = v / total
		if largest == "" || weights[k] > weights[largest] || (weights[k] == weights[largest] && k < largest) {
			largest = k
		}
	}
	residual := 1 - weights.Sum()
	if residual != 0 {
		weights[largest] += residual
	}
}
