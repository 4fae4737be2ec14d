package universe

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/marketdata"
)

// DefaultLiquidityFloor is the minimum average daily volume for inclusion
const DefaultLiquidityFloor = 100000

// ErrEmptyUniverse means no candidate survived the data and liquidity checks
var ErrEmptyUniverse = errors.New("universe is empty: no candidate passed data and liquidity checks")

// DefaultCandidates is the standard Treasury ETF ladder with effective durations in years
func DefaultCandidates() map[string]float64 {
	return map[string]float64{
		"SHY": 1.92,
		"IEF": 7.45,
		"TLT": 16.80,
	}
}

// Exclusion records why a candidate was left out
type Exclusion struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// Builder filters a fixed candidate list into the cycle's Universe
type Builder struct {
	candidates map[string]float64
	floor      float64
}

// NewBuilder creates a builder; floor 0 disables the liquidity filter
func NewBuilder(candidates map[string]float64, floor float64) *Builder {
	c := make(map[string]float64, len(candidates))
	for t, d := range candidates {
		c[t] = d
	}
	return &Builder{candidates: c, floor: floor}
}

// Tickers returns the candidate tickers in sorted order
func (b *Builder) Tickers() []string {
	out := make([]string, 0, len(b.candidates))
	for t := range b.candidates {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Candidates returns a copy of the static candidate durations
func (b *Builder) Candidates() map[string]float64 {
	c := make(map[string]float64, len(b.candidates))
	for t, d := range b.candidates {
		c[t] = d
	}
	return c
}

// Build keeps candidates that have a positive price and, when the floor is positive,
// average volume strictly above the floor. durations overrides the static durations per ticker.
func (b *Builder) Build(snap marketdata.Snapshot, durations map[string]float64) (domain.Universe, []Exclusion, error) {
	var kept []domain.Instrument
	var excluded []Exclusion
	for _, ticker := range b.Tickers() {
		dur := b.candidates[ticker]
		if d, ok := durations[ticker]; ok {
			dur = d
		}

		q, ok := snap[ticker]
		switch {
		case !ok:
			excluded = append(excluded, Exclusion{Ticker: ticker, Reason: "no quote"})
			continue
		case q.Price <= 0:
			excluded = append(excluded, Exclusion{Ticker: ticker, Reason: fmt.Sprintf("invalid price %.4f", q.Price)})
			continue
		case b.floor > 0 && !q.HasVolume:
			excluded = append(excluded, Exclusion{Ticker: ticker, Reason: "no volume data"})
			continue
		case b.floor > 0 && q.AvgVolume <= b.floor:
			excluded = append(excluded, Exclusion{
				Ticker: ticker,
				Reason: fmt.Sprintf("avg volume %.0f below floor %.0f", q.AvgVolume, b.floor),
			})
			continue
		}

		kept = append(kept, domain.Instrument{
			Ticker:    ticker,
			Duration:  dur,
			Price:     q.Price,
			AvgVolume: q.AvgVolume,
		})
	}

	if len(kept) == 0 {
		return nil, excluded, ErrEmptyUniverse
	}
	return domain.NewUniverse(kept), excluded, nil
}
