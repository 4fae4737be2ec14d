package domain

import (
	"fmt"
	"sort"
	"strings"
)

// DustShares is the holding size at or below which a position is treated as absent
const DustShares = 0.01

// Instrument is a per-cycle snapshot of one tradable bond ETF
type Instrument struct {
	Ticker    string  `json:"ticker"`
	Duration  float64 `json:"duration"`
	Price     float64 `json:"price"`
	AvgVolume float64 `json:"avg_volume,omitempty"`
}

// Universe is the set of instruments eligible for allocation in one cycle, ordered by duration
type Universe []Instrument

// NewUniverse copies the instruments and sorts them by ascending duration (ticker breaks ties)
func NewUniverse(instruments []Instrument) Universe {
	u := make(Universe, len(instruments))
	copy(u, instruments)
	sort.SliceStable(u, func(i, j int) bool {
		if u[i].Duration == u[j].Duration {
			return u[i].Ticker < u[j].Ticker
		}
		return u[i].Duration < u[j].Duration
	})
	return u
}

// Tickers returns the universe tickers in duration order
func (u Universe) Tickers() []string {
	out := make([]string, len(u))
	for i, inst := range u {
		out[i] = inst.Ticker
	}
	return out
}

// Lookup finds an instrument by ticker
func (u Universe) Lookup(ticker string) (Instrument, bool) {
	for _, inst := range u {
		if inst.Ticker == ticker {
			return inst, true
		}
	}
	return Instrument{}, false
}

// Prices maps ticker to last traded price
func (u Universe) Prices() Prices {
	p := make(Prices, len(u))
	for _, inst := range u {
		p[inst.Ticker] = inst.Price
	}
	return p
}

// Durations maps ticker to duration
func (u Universe) Durations() map[string]float64 {
	d := make(map[string]float64, len(u))
	for _, inst := range u {
		d[inst.Ticker] = inst.Duration
	}
	return d
}

// Holdings maps ticker to share quantity
type Holdings map[string]float64

// Prices maps ticker to last traded price
type Prices map[string]float64

// WeightVector maps ticker to target weight in [0,1]
type WeightVector map[string]float64

// Sum returns the total of all weights
func (w WeightVector) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// String renders weights in ticker order, e.g. "IEF=0.9412 TLT=0.0588"
func (w WeightVector) String() string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.4f", k, w[k]))
	}
	return strings.Join(parts, " ")
}

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// SideOf derives the side from a signed quantity
func SideOf(qty float64) Side {
	if qty > 0 {
		return SideBuy
	}
	return SideSell
}

// TradeOrder is a sized, not yet approved, order for one ticker
type TradeOrder struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"` // signed: target minus current shares
	Price    float64 `json:"price"`
	Side     Side    `json:"side"`
	Notional float64 `json:"notional"`
}

// AbsQuantity returns the unsigned share count
func (o TradeOrder) AbsQuantity() float64 {
	if o.Quantity < 0 {
		return -o.Quantity
	}
	return o.Quantity
}

func (o TradeOrder) String() string {
	return fmt.Sprintf("%s %s %.2f@%.2f, value %.2f", o.Side, o.Ticker, o.AbsQuantity(), o.Price, o.Notional)
}

// LogLevel tags ledger log records
type LogLevel string

const (
	LevelInfo        LogLevel = "INFO"
	LevelError       LogLevel = "ERROR"
	LevelRiskReject  LogLevel = "RISK_REJECT"
	LevelCritical    LogLevel = "CRITICAL"
	LevelStrategyRun LogLevel = "STRATEGY_RUN"
)

// TradeStatusFilled is the only status mock execution produces
const TradeStatusFilled = "FILLED"

// Config keys read from the ledger each cycle
const (
	ConfigKillSwitch     = "kill_switch"
	ConfigTargetDuration = "target_duration"
)
