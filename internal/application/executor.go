package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/persistence"
)

// Executor turns an approved order into a trade inside the guarded ledger section
type Executor interface {
	Execute(ctx context.Context, tx persistence.TradeWriter, order domain.TradeOrder) (persistence.Trade, error)

	// Describe renders the fill confirmation for the event log
	Describe(trade persistence.Trade) string
}

// MockExecutor fills every approved order at its sizing price
type MockExecutor struct{}

// NewMockExecutor creates a paper executor
func NewMockExecutor() *MockExecutor { return &MockExecutor{} }

// Execute records the order as a FILLED trade
func (m *MockExecutor) Execute(ctx context.Context, tx persistence.TradeWriter, order domain.TradeOrder) (persistence.Trade, error) {
	trade := persistence.TradeFromOrder(order)
	if err := tx.AppendTrade(ctx, trade); err != nil {
		return trade, fmt.Errorf("mock fill %s: %w", order.Ticker, err)
	}
	return trade, nil
}

// Describe renders e.g. "MOCK BUY 1111.11 TLT at $90.00 (Total: $99,999.90)"
func (m *MockExecutor) Describe(trade persistence.Trade) string {
	return fmt.Sprintf("MOCK %s %.2f %s at $%.2f (Total: $%s)",
		trade.Side, trade.Qty, trade.Ticker, trade.Price, FormatMoney(trade.TradeValue))
}

// FormatMoney renders an amount with thousands separators and two decimals
func FormatMoney(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
