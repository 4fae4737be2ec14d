package application

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/domain/allocation"
	"github.com/sawpanic/fisr/internal/domain/rebalance"
	"github.com/sawpanic/fisr/internal/domain/risk"
	"github.com/sawpanic/fisr/internal/domain/sizing"
	"github.com/sawpanic/fisr/internal/domain/universe"
	"github.com/sawpanic/fisr/internal/eventlog"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	"github.com/sawpanic/fisr/internal/marketdata"
	"github.com/sawpanic/fisr/internal/persistence"
)

type harness struct {
	manager *db.Manager
	ledger  persistence.Ledger
	source  marketdata.Source
	limits  risk.Limits
	cands   map[string]float64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := db.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "ledger.db")
	cfg.Timezone = "UTC"
	m, err := db.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	require.NoError(t, m.Ledger().Init(context.Background()))

	return &harness{
		manager: m,
		ledger:  m.Ledger(),
		source: marketdata.NewStaticSource(map[string]marketdata.StaticQuote{
			"SHY": {Price: 80, AvgVolume: 3e6},
			"TLT": {Price: 90, AvgVolume: 2e7},
		}),
		limits: risk.Limits{FatFingerLimit: 1.0, TurnoverLimit: 0.20},
		cands:  map[string]float64{"SHY": 1.92, "TLT": 16.80},
	}
}

func (h *harness) rebalancer(t *testing.T) *Rebalancer {
	t.Helper()
	r, err := NewRebalancer(Deps{
		Ledger:     h.ledger,
		Source:     h.source,
		Builder:    universe.NewBuilder(h.cands, universe.DefaultLiquidityFloor),
		Solver:     allocation.NewSolver(allocation.DefaultAnchorPolicy()),
		Gate:       rebalance.NewGate(rebalance.DefaultDriftThreshold),
		Sizer:      sizing.NewSizer(sizing.DefaultMinDelta),
		Gatekeeper: risk.NewGatekeeper(h.limits),
		Executor:   NewMockExecutor(),
		Journal:    eventlog.NewJournal(h.ledger, zerolog.Nop(), nil),
	}, Settings{Equity: 100000, Lookback: 5 * 24 * time.Hour, Interval: "1d"})
	require.NoError(t, err)
	return r
}

func (h *harness) logs(t *testing.T, level string) []persistence.LogEntry {
	t.Helper()
	entries, err := h.ledger.ListLogs(context.Background(), 100, level)
	require.NoError(t, err)
	return entries
}

func TestRunCycle_InitialAllocationRejectedByTurnover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.ledger.UpdateConfig(ctx, domain.ConfigTargetDuration, 16.80))

	report, err := h.rebalancer(t).RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeRebalanced, report.Outcome)
	assert.True(t, report.State.AllCash())
	assert.Equal(t, 1.0, report.Weights["TLT"])
	assert.Equal(t, 0.0, report.Weights["SHY"])

	require.Len(t, report.Orders, 1)
	o := report.Orders[0]
	assert.Equal(t, "TLT", o.Order.Ticker)
	assert.Equal(t, domain.SideBuy, o.Order.Side)
	assert.Equal(t, 1111.11, o.Order.Quantity)
	assert.Equal(t, 99999.9, o.Order.Notional)
	assert.Equal(t, OrderRejected, o.Status)
	assert.Equal(t, risk.ReasonTurnover, o.Decision.Reason)

	rejects := h.logs(t, "RISK_REJECT")
	require.Len(t, rejects, 1)
	assert.Contains(t, rejects[0].Message, "Daily turnover limit")

	trades, err := h.ledger.ListTrades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	signal, err := h.ledger.LatestSignal(ctx)
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, 16.80, signal.TargetDuration)

	assert.Len(t, h.logs(t, "STRATEGY_RUN"), 1)
}

func TestRunCycle_FillsWithinLimits(t *testing.T) {
	h := newHarness(t)
	h.limits = risk.Limits{FatFingerLimit: 1.0, TurnoverLimit: 1.0}
	ctx := context.Background()
	require.NoError(t, h.ledger.UpdateConfig(ctx, domain.ConfigTargetDuration, 16.80))

	report, err := h.rebalancer(t).RunCycle(ctx)
	require.NoError(t, err)
	require.Len(t, report.Filled(), 1)

	holdings, err := h.ledger.CurrentHoldings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Holdings{"TLT": 1111.11}, holdings)

	var found bool
	for _, e := range h.logs(t, "INFO") {
		if e.Message == "MOCK BUY 1111.11 TLT at $90.00 (Total: $99,999.90)" {
			found = true
		}
	}
	assert.True(t, found, "mock fill confirmation missing")

	// second cycle: book sits on target, drift is zero
	report, err = h.rebalancer(t).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Outcome)
	assert.Empty(t, report.Orders)

	signals, err := h.ledger.ListSignals(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, signals, 1)

	info := h.logs(t, "INFO")
	assert.Equal(t, "No rebalance: Drift (0.00) < Threshold (0.20)", info[0].Message)
}

func TestRunCycle_KillSwitch(t *testing.T) {
	h := newHarness(t)
	h.limits = risk.Limits{FatFingerLimit: 1.0, TurnoverLimit: 1.0}
	ctx := context.Background()
	require.NoError(t, h.ledger.UpdateConfig(ctx, domain.ConfigKillSwitch, 0))

	report, err := h.rebalancer(t).RunCycle(ctx)
	require.NoError(t, err)

	require.NotEmpty(t, report.Orders)
	for _, o := range report.Orders {
		assert.Equal(t, risk.ReasonKillSwitch, o.Decision.Reason)
	}
	rejects := h.logs(t, "RISK_REJECT")
	require.NotEmpty(t, rejects)
	assert.Contains(t, rejects[0].Message, "Kill Switch is ACTIVE")
}

func TestRunCycle_MissingConfigAborts(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.DB().Exec(`DELETE FROM config WHERE key = 'target_duration'`)
	require.NoError(t, err)

	report, err := h.rebalancer(t).RunCycle(context.Background())
	require.Error(t, err)

	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ConfigError, ce.Kind)
	assert.ErrorIs(t, err, persistence.ErrConfigMissing)
	assert.Equal(t, OutcomeAborted, report.Outcome)
	assert.Len(t, h.logs(t, "CRITICAL"), 1)
}

func TestRunCycle_NoMarketDataAborts(t *testing.T) {
	h := newHarness(t)
	h.source = marketdata.NewStaticSource(map[string]marketdata.StaticQuote{"XYZ": {Price: 1}})

	_, err := h.rebalancer(t).RunCycle(context.Background())

	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, DataError, ce.Kind)
	assert.ErrorIs(t, err, marketdata.ErrNoData)

	signals, err := h.ledger.ListSignals(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestRunCycle_IlliquidUniverseAborts(t *testing.T) {
	h := newHarness(t)
	h.source = marketdata.NewStaticSource(map[string]marketdata.StaticQuote{
		"SHY": {Price: 80, AvgVolume: 50},
		"TLT": {Price: 90, AvgVolume: 100000},
	})

	report, err := h.rebalancer(t).RunCycle(context.Background())

	assert.ErrorIs(t, err, universe.ErrEmptyUniverse)
	assert.Len(t, report.Excluded, 2)
	critical := h.logs(t, "CRITICAL")
	require.Len(t, critical, 1)
	assert.Contains(t, critical[0].Message, "universe is empty")
}

func TestRunCycle_SellsWhenTargetShortens(t *testing.T) {
	h := newHarness(t)
	// sell 90k then buy 100k in one day
	h.limits = risk.Limits{FatFingerLimit: 1.0, TurnoverLimit: 2.0}
	ctx := context.Background()
	require.NoError(t, h.ledger.AppendTrade(ctx, persistence.Trade{
		Ticker: "TLT", Qty: 1000, Price: 90, Side: "BUY", TradeValue: 90000, Timestamp: "2020-01-02 10:00:00",
	}))
	require.NoError(t, h.ledger.UpdateConfig(ctx, domain.ConfigTargetDuration, 1.92))

	report, err := h.rebalancer(t).RunCycle(ctx)
	require.NoError(t, err)

	require.Len(t, report.Orders, 2)
	assert.Equal(t, domain.SideSell, report.Orders[0].Order.Side)
	assert.Equal(t, "TLT", report.Orders[0].Order.Ticker)
	assert.Equal(t, OrderFilled, report.Orders[0].Status)
	assert.Equal(t, domain.SideBuy, report.Orders[1].Order.Side)
	assert.Equal(t, "SHY", report.Orders[1].Order.Ticker)

	holdings, err := h.ledger.CurrentHoldings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Holdings{"SHY": 1250}, holdings)
}

func TestNewRebalancerValidation(t *testing.T) {
	_, err := NewRebalancer(Deps{}, Settings{Equity: 1})
	assert.Error(t, err)

	h := newHarness(t)
	r := h.rebalancer(t)
	_, err = NewRebalancer(r.Deps, Settings{})
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "99,999.90", FormatMoney(99999.9))
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "1,234,567.89", FormatMoney(1234567.891))
	assert.Equal(t, "-1,000.00", FormatMoney(-1000))
	assert.Equal(t, "999.00", FormatMoney(999))
}
