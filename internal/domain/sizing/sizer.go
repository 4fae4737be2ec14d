package sizing

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/fisr/internal/domain"
)

const (
	// DefaultMinDelta is the share delta at or below which no order is emitted
	DefaultMinDelta = 0.1
	// QuantityPlaces is the number of decimals an order quantity is rounded to
	QuantityPlaces = 2
)

// Skipped is a ticker that needed a trade but could not be sized
type Skipped struct {
	Ticker string  `json:"ticker"`
	Delta  float64 `json:"delta"`
	Reason string  `json:"reason"`
}

// Sizer turns target weights into share deltas against current holdings
type Sizer struct {
	minDelta float64
}

// NewSizer creates a sizer with the given dust filter
func NewSizer(minDelta float64) *Sizer {
	if minDelta <= 0 {
		minDelta = DefaultMinDelta
	}
	return &Sizer{minDelta: minDelta}
}

// Size emits one order per ticker in weights or holdings whose delta exceeds the dust filter.
// Sells come before buys, each group in ticker order.
func (s *Sizer) Size(weights domain.WeightVector, equity float64, holdings domain.Holdings, prices domain.Prices) ([]domain.TradeOrder, []Skipped) {
	tickers := union(weights, holdings)

	var orders []domain.TradeOrder
	var skipped []Skipped
	for _, ticker := range tickers {
		weight := weights[ticker]
		current := holdings[ticker]
		price, priced := prices[ticker]
		priced = priced && price > 0

		if !priced {
			if weight > 0 {
				skipped = append(skipped, Skipped{Ticker: ticker, Reason: "no price for weighted ticker"})
				continue
			}
			if math.Abs(current) > s.minDelta {
				skipped = append(skipped, Skipped{Ticker: ticker, Delta: -current, Reason: "no price for held ticker"})
			}
			continue
		}

		target := 0.0
		if weight > 0 {
			target = weight * equity / price
		}
		delta := target - current
		if math.Abs(delta) <= s.minDelta {
			continue
		}

		qty := decimal.NewFromFloat(delta).Round(QuantityPlaces)
		notional := qty.Mul(decimal.NewFromFloat(price)).Abs()
		orders = append(orders, domain.TradeOrder{
			Ticker:   ticker,
			Quantity: qty.InexactFloat64(),
			Price:    price,
			Side:     domain.SideOf(delta),
			Notional: notional.InexactFloat64(),
		})
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Side != orders[j].Side {
			return orders[i].Side == domain.SideSell
		}
		return orders[i].Ticker < orders[j].Ticker
	})
	return orders, skipped
}

func union(weights domain.WeightVector, holdings domain.Holdings) []string {
	seen := make(map[string]struct{}, len(weights)+len(holdings))
	for t := range weights {
		seen[t] = struct{}{}
	}
	for t := range holdings {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
