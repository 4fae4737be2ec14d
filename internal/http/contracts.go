package http

import (
	"time"

	"github.com/sawpanic/fisr/internal/persistence"
)

// ErrorResponse represents standardized error responses
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string                  `json:"status"` // healthy, degraded, down
	Timestamp  time.Time               `json:"timestamp"`
	Ledger     persistence.HealthCheck `json:"ledger"`
	MarketData CircuitHealth           `json:"marketdata"`
	KillSwitch *float64                `json:"kill_switch,omitempty"`
}

// CircuitHealth represents the market data breaker
type CircuitHealth struct {
	Name  string `json:"name"`
	State string `json:"state"` // closed, open, half-open
}

// PositionView is one holding valued at the latest price
type PositionView struct {
	Ticker      string  `json:"ticker"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	MarketValue float64 `json:"market_value"`
	Duration    float64 `json:"duration"`
	Weight      float64 `json:"weight"`
	Priced      bool    `json:"priced"`
}

// PortfolioResponse is the dashboard book view
type PortfolioResponse struct {
	AsOf            time.Time      `json:"as_of"`
	Positions       []PositionView `json:"positions"`
	MarketValue     float64        `json:"market_value"`
	Cash            float64        `json:"cash"`
	Equity          float64        `json:"equity"`
	CurrentDuration float64        `json:"current_duration"`
	TargetDuration  float64        `json:"target_duration"`
	SignalTarget    *float64       `json:"signal_target,omitempty"`
	KillSwitch      float64        `json:"kill_switch"`
	Halted          bool           `json:"halted"`
	PriceError      string         `json:"price_error,omitempty"`
}

// TradesResponse lists blotter rows newest first
type TradesResponse struct {
	Trades []persistence.Trade `json:"trades"`
	Count  int                 `json:"count"`
}

// SignalsResponse lists recorded signals newest first
type SignalsResponse struct {
	Signals []persistence.Signal `json:"signals"`
	Count   int                  `json:"count"`
}

// LogsResponse lists event log lines newest first
type LogsResponse struct {
	Logs  []persistence.LogEntry `json:"logs"`
	Count int                    `json:"count"`
}

// ConfigResponse lists the runtime key/value settings
type ConfigResponse struct {
	Config []persistence.ConfigEntry `json:"config"`
}

// ConfigUpdateRequest is the body of PUT /api/config/{key}
type ConfigUpdateRequest struct {
	Value *float64 `json:"value"`
}
