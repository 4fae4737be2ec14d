package rebalance

import (
	"fmt"
	"math"

	"github.com/sawpanic/fisr/internal/domain/portfolio"
)

// DefaultDriftThreshold is the drift in years below which trading is skipped
const DefaultDriftThreshold = 0.2

// Decision is the outcome of the drift gate
type Decision struct {
	Proceed   bool    `json:"proceed"`
	Current   float64 `json:"current_duration"`
	Target    float64 `json:"target_duration"`
	Drift     float64 `json:"drift"`
	Threshold float64 `json:"threshold"`
	AllCash   bool    `json:"all_cash"`
}

// Reason renders the decision for the event log
func (d Decision) Reason() string {
	if d.Proceed {
		if d.AllCash {
			return fmt.Sprintf("Rebalance: initial allocation from cash to target %.2f", d.Target)
		}
		return fmt.Sprintf("Rebalance: Drift (%.2f) >= Threshold (%.2f)", d.Drift, d.Threshold)
	}
	return fmt.Sprintf("No rebalance: Drift (%.2f) < Threshold (%.2f)", d.Drift, d.Threshold)
}

// Gate decides whether drift from target is large enough to trade
type Gate struct {
	threshold float64
}

// NewGate creates a drift gate; a non-positive threshold falls back to the default
func NewGate(threshold float64) *Gate {
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	return &Gate{threshold: threshold}
}

// Threshold returns the effective drift threshold
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Decide skips only when drift is strictly below threshold and the book holds something
func (g *Gate) Decide(state portfolio.State, target float64) Decision {
	drift := math.Abs(state.Duration - target)
	skip := drift < g.threshold && !state.AllCash()
	return Decision{
		Proceed:   !skip,
		Current:   state.Duration,
		Target:    target,
		Drift:     drift,
		Threshold: g.threshold,
		AllCash:   state.AllCash(),
	}
}
