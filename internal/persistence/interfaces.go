package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/fisr/internal/domain"
)

// TimestampLayout is the text form of every ledger timestamp; day filters match its date prefix
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DayLayout       = "2006-01-02"
)

// ErrConfigMissing is returned when a required config key is absent
var ErrConfigMissing = errors.New("config key missing")

// Trade is an executed (mock) trade as stored in the ledger
type Trade struct {
	ID         int64   `json:"id" db:"id"`
	Timestamp  string  `json:"ts" db:"ts"`
	Ticker     string  `json:"ticker" db:"ticker"`
	Qty        float64 `json:"qty" db:"qty"` // unsigned; direction is in Side
	Price      float64 `json:"price" db:"price"`
	Side       string  `json:"side" db:"side"`
	TradeValue float64 `json:"trade_value" db:"trade_value"`
	Status     string  `json:"status" db:"status"`
}

// TradeFromOrder converts an approved order into a FILLED trade record
func TradeFromOrder(o domain.TradeOrder) Trade {
	return Trade{
		Ticker:     o.Ticker,
		Qty:        o.AbsQuantity(),
		Price:      o.Price,
		Side:       string(o.Side),
		TradeValue: o.Notional,
		Status:     domain.TradeStatusFilled,
	}
}

// Time parses the stored timestamp in loc
func (t Trade) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, t.Timestamp, loc)
}

// SignedQty returns qty with BUY positive and SELL negative
func (t Trade) SignedQty() float64 {
	if t.Side == string(domain.SideSell) {
		return -t.Qty
	}
	return t.Qty
}

// Signal is one recorded rebalance decision
type Signal struct {
	ID             int64               `json:"id" db:"id"`
	Timestamp      string              `json:"ts" db:"ts"`
	TargetDuration float64             `json:"target_duration" db:"target_duration"`
	Weights        domain.WeightVector `json:"weights" db:"-"`
	WeightsJSON    string              `json:"-" db:"weights"`
}

// LogEntry is one event log line
type LogEntry struct {
	ID        int64  `json:"id" db:"id"`
	Timestamp string `json:"ts" db:"ts"`
	Level     string `json:"level" db:"level"`
	Message   string `json:"message" db:"message"`
}

// ConfigEntry is one runtime key/value setting
type ConfigEntry struct {
	Key   string  `json:"key" db:"key"`
	Value float64 `json:"value" db:"value"`
}

// SideTotals sums trade value by side
type SideTotals struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

// ConfigRepo is the runtime key/value store
type ConfigRepo interface {
	// GetConfig returns ErrConfigMissing for an absent key
	GetConfig(ctx context.Context, key string) (float64, error)

	// UpdateConfig upserts a value; this is the operator mutation path
	UpdateConfig(ctx context.Context, key string, value float64) error

	ListConfig(ctx context.Context) ([]ConfigEntry, error)
}

// SignalsRepo records rebalance decisions
type SignalsRepo interface {
	LogSignal(ctx context.Context, targetDuration float64, weights domain.WeightVector) error

	// LatestSignal returns nil when no signal was ever recorded
	LatestSignal(ctx context.Context) (*Signal, error)

	ListSignals(ctx context.Context, limit int) ([]Signal, error)
}

// EventsRepo is the append-only event log
type EventsRepo interface {
	LogEvent(ctx context.Context, level domain.LogLevel, message string) error

	// ListLogs returns newest first; an empty level matches all
	ListLogs(ctx context.Context, limit int, level string) ([]LogEntry, error)
}

// TradeWriter is the part of the trade ledger used inside a guarded section
type TradeWriter interface {
	AppendTrade(ctx context.Context, trade Trade) error

	// SumTradeValueForDay sums trade_value of trades whose timestamp starts with the day's date
	SumTradeValueForDay(ctx context.Context, day time.Time) (float64, error)
}

// TradesRepo is the append-only trade blotter
type TradesRepo interface {
	TradeWriter

	// CurrentHoldings nets BUY minus SELL per ticker and keeps positions above the dust threshold
	CurrentHoldings(ctx context.Context) (domain.Holdings, error)

	ListTrades(ctx context.Context, limit int) ([]Trade, error)
	ListTradesForDay(ctx context.Context, day time.Time) ([]Trade, error)
	TotalsBySide(ctx context.Context) (SideTotals, error)
}

// Ledger is the complete persistent store
type Ledger interface {
	ConfigRepo
	SignalsRepo
	EventsRepo
	TradesRepo

	// Guarded runs fn in one transaction under an exclusive lock on the trade blotter,
	// so a turnover read and the following append cannot interleave with another writer.
	Guarded(ctx context.Context, fn func(ctx context.Context, tx TradeWriter) error) error

	// Init creates the schema and seeds default config values that are absent
	Init(ctx context.Context) error

	// Now returns the ledger clock in its configured timezone
	Now() time.Time
}

// HealthCheck represents ledger health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for the persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}

// DefaultConfig holds the values seeded on init
func DefaultConfig() map[string]float64 {
	return map[string]float64{
		domain.ConfigKillSwitch:     1.0,
		domain.ConfigTargetDuration: 8.0,
	}
}
