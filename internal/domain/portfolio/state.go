package portfolio

import (
	"sort"

	"github.com/sawpanic/fisr/internal/domain"
)

// SkipReason explains why a held ticker did not contribute to the book
type SkipReason string

const (
	SkipNoPrice    SkipReason = "missing_price"
	SkipNoDuration SkipReason = "missing_duration"
)

// Skipped is a holding left out of the valuation
type Skipped struct {
	Ticker string     `json:"ticker"`
	Reason SkipReason `json:"reason"`
}

// State is the valuation of the current book
type State struct {
	Duration   float64    `json:"duration"`
	TotalValue float64    `json:"total_value"`
	Positions  []Position `json:"positions"`
	Skipped    []Skipped  `json:"skipped,omitempty"`
}

// Position is one valued holding
type Position struct {
	Ticker      string  `json:"ticker"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	Duration    float64 `json:"duration"`
	MarketValue float64 `json:"market_value"`
}

// AllCash reports the empty-book state, where Duration is the 0 sentinel rather than a real duration
func (s State) AllCash() bool {
	return s.TotalValue == 0
}

// Assess computes the value-weighted duration and total market value of holdings.
// Tickers with no positive price or no known duration are skipped and reported.
func Assess(holdings domain.Holdings, prices domain.Prices, durations map[string]float64) State {
	tickers := make([]string, 0, len(holdings))
	for t := range holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var state State
	var weighted float64
	for _, ticker := range tickers {
		qty := holdings[ticker]
		price, ok := prices[ticker]
		if !ok || price <= 0 {
			state.Skipped = append(state.Skipped, Skipped{Ticker: ticker, Reason: SkipNoPrice})
			continue
		}
		dur, ok := durations[ticker]
		if !ok {
			state.Skipped = append(state.Skipped, Skipped{Ticker: ticker, Reason: SkipNoDuration})
			continue
		}
		value := qty * price
		state.Positions = append(state.Positions, Position{
			Ticker:      ticker,
			Quantity:    qty,
			Price:       price,
			Duration:    dur,
			MarketValue: value,
		})
		state.TotalValue += value
		weighted += value * dur
	}

	if state.TotalValue != 0 {
		state.Duration = weighted / state.TotalValue
	}
	return state
}
