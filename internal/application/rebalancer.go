package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/domain/allocation"
	"github.com/sawpanic/fisr/internal/domain/portfolio"
	"github.com/sawpanic/fisr/internal/domain/rebalance"
	"github.com/sawpanic/fisr/internal/domain/risk"
	"github.com/sawpanic/fisr/internal/domain/sizing"
	"github.com/sawpanic/fisr/internal/domain/universe"
	"github.com/sawpanic/fisr/internal/eventlog"
	"github.com/sawpanic/fisr/internal/marketdata"
	"github.com/sawpanic/fisr/internal/persistence"
)

// Observer receives cycle measurements; the dashboard metrics registry implements it
type Observer interface {
	ObserveCycle(outcome Outcome, elapsed time.Duration)
	ObserveDuration(current, target, drift float64)
	ObserveOrder(status OrderStatus, reason risk.RejectReason)
	ObserveFetchError(provider string)
}

type nopObserver struct{}

func (nopObserver) ObserveCycle(Outcome, time.Duration) {}
func (nopObserver) ObserveDuration(float64, float64, float64) {}
func (nopObserver) ObserveOrder(OrderStatus, risk.RejectReason) {}
func (nopObserver) ObserveFetchError(string) {}

// Settings are the static parameters of a cycle
type Settings struct {
	Equity   float64
	Lookback time.Duration
	Interval string
}

// Deps wires the collaborators of a Rebalancer
type Deps struct {
	Ledger     persistence.Ledger
	Source     marketdata.Source
	Builder    *universe.Builder
	Durations  universe.DurationSource // nil keeps the static candidate durations
	Solver     *allocation.Solver
	Gate       *rebalance.Gate
	Sizer      *sizing.Sizer
	Gatekeeper *risk.Gatekeeper
	Executor   Executor
	Journal    *eventlog.Journal
	Observer   Observer
}

// Rebalancer runs the duration-targeting cycle
type Rebalancer struct {
	Deps
	settings Settings
}

// NewRebalancer validates wiring and creates a rebalancer
func NewRebalancer(deps Deps, settings Settings) (*Rebalancer, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("rebalancer: ledger is required")
	case deps.Source == nil:
		return nil, errors.New("rebalancer: market data source is required")
	case deps.Builder == nil, deps.Solver == nil, deps.Gate == nil, deps.Sizer == nil, deps.Gatekeeper == nil:
		return nil, errors.New("rebalancer: domain components are required")
	case deps.Executor == nil:
		return nil, errors.New("rebalancer: executor is required")
	case deps.Journal == nil:
		return nil, errors.New("rebalancer: journal is required")
	}
	if settings.Equity <= 0 {
		return nil, fmt.Errorf("rebalancer: reference equity must be positive, got %v", settings.Equity)
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	return &Rebalancer{Deps: deps, settings: settings}, nil
}

// RunCycle executes one pass. Data, config and ledger failures abort with a *CycleError;
// risk rejections are per order and reported in the CycleReport.
func (r *Rebalancer) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{StartedAt: r.Ledger.Now(), Outcome: OutcomeAborted}
	start := time.Now()
	defer func() {
		report.Elapsed = time.Since(start)
		r.Observer.ObserveCycle(report.Outcome, report.Elapsed)
	}()

	if err := r.Journal.Record(ctx, domain.LevelStrategyRun, "Strategy cycle started"); err != nil {
		return report, &CycleError{Kind: LedgerError, Op: "log cycle start", Err: err}
	}

	if err := r.readConfig(ctx, report); err != nil {
		return report, err
	}

	holdings, err := r.Ledger.CurrentHoldings(ctx)
	if err != nil {
		return report, r.abort(ctx, LedgerError, "read holdings", err)
	}

	snap, err := r.fetch(ctx, holdings)
	if err != nil {
		return report, err
	}

	durations := r.Builder.Candidates()
	if r.Durations != nil {
		refreshed, err := r.Durations.Durations(ctx, r.Builder.Tickers())
		if err != nil {
			log.Warn().Err(err).Msg("Duration refresh failed, using static durations")
		}
		for t, d := range refreshed {
			durations[t] = d
		}
	}

	u, excluded, err := r.Builder.Build(snap, durations)
	report.Excluded = excluded
	for _, ex := range excluded {
		log.Info().Str("ticker", ex.Ticker).Str("reason", ex.Reason).Msg("Candidate excluded from universe")
	}
	if err != nil {
		return report, r.abort(ctx, DataError, "build universe", err)
	}
	report.Universe = u

	prices := snap.Prices()
	state := portfolio.Assess(holdings, prices, durations)
	report.State = state
	for _, s := range state.Skipped {
		r.record(ctx, domain.LevelError, fmt.Sprintf("Holding %s %.2f shares left out of valuation: %s", s.Ticker, holdings[s.Ticker], s.Reason))
	}

	decision := r.Gate.Decide(state, report.TargetDuration)
	report.Decision = decision
	r.Observer.ObserveDuration(decision.Current, decision.Target, decision.Drift)
	if !decision.Proceed {
		report.Outcome = OutcomeSkipped
		r.record(ctx, domain.LevelInfo, decision.Reason())
		return report, nil
	}

	weights, err := r.Solver.Solve(report.TargetDuration, u)
	if err != nil {
		return report, r.abort(ctx, DataError, "solve weights", err)
	}
	report.Weights = weights

	if err := r.Ledger.LogSignal(ctx, report.TargetDuration, weights); err != nil {
		return report, r.abort(ctx, LedgerError, "log signal", err)
	}
	r.record(ctx, domain.LevelInfo, fmt.Sprintf("%s. Target weights: %s", decision.Reason(), weights))

	orders, unsized := r.Sizer.Size(weights, r.settings.Equity, holdings, prices)
	report.Unsized = unsized
	for _, s := range unsized {
		r.record(ctx, domain.LevelError, fmt.Sprintf("Order for %s not sized: %s", s.Ticker, s.Reason))
	}

	for _, order := range orders {
		res, err := r.place(ctx, order, report.KillSwitch)
		if err != nil {
			return report, r.abort(ctx, LedgerError, "place order "+order.Ticker, err)
		}
		report.Orders = append(report.Orders, res)
	}

	report.Outcome = OutcomeRebalanced
	return report, nil
}

func (r *Rebalancer) readConfig(ctx context.Context, report *CycleReport) error {
	ks, err := r.Ledger.GetConfig(ctx, domain.ConfigKillSwitch)
	if err != nil {
		return r.configError(ctx, err)
	}
	target, err := r.Ledger.GetConfig(ctx, domain.ConfigTargetDuration)
	if err != nil {
		return r.configError(ctx, err)
	}
	report.KillSwitch = ks
	report.TargetDuration = target
	return nil
}

func (r *Rebalancer) configError(ctx context.Context, err error) error {
	kind := LedgerError
	if errors.Is(err, persistence.ErrConfigMissing) {
		kind = ConfigError
	}
	return r.abort(ctx, kind, "read config", err)
}

func (r *Rebalancer) fetch(ctx context.Context, holdings domain.Holdings) (marketdata.Snapshot, error) {
	tickers := r.Builder.Tickers()
	for t := range holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	req := marketdata.Request{Tickers: tickers, Lookback: r.settings.Lookback, Interval: r.settings.Interval}
	snap, err := r.Source.Fetch(ctx, req)
	if err != nil {
		r.Observer.ObserveFetchError(r.Source.Name())
		return nil, r.abort(ctx, DataError, "fetch market data", err)
	}
	if len(snap) == 0 {
		return nil, r.abort(ctx, DataError, "fetch market data",
			fmt.Errorf("%w from %s (market closed?)", marketdata.ErrNoData, r.Source.Name()))
	}
	return snap, nil
}

// place runs the turnover read, the risk check and the fill as one guarded ledger section
func (r *Rebalancer) place(ctx context.Context, order domain.TradeOrder, killSwitch float64) (OrderResult, error) {
	res := OrderResult{Order: order}

	err := r.Ledger.Guarded(ctx, func(ctx context.Context, tx persistence.TradeWriter) error {
		used, err := tx.SumTradeValueForDay(ctx, r.Ledger.Now())
		if err != nil {
			return err
		}
		res.Decision = r.Gatekeeper.Check(order, risk.Exposure{
			KillSwitch:  killSwitch,
			Equity:      r.settings.Equity,
			TradedToday: used,
		})
		if !res.Decision.Approved {
			return &risk.Rejection{Decision: res.Decision}
		}
		trade, err := r.Executor.Execute(ctx, tx, order)
		if err != nil {
			return err
		}
		res.Trade = &trade
		return nil
	})

	if rej, ok := risk.AsRejection(err); ok {
		res.Status = OrderRejected
		r.Observer.ObserveOrder(OrderRejected, rej.Decision.Reason)
		r.record(ctx, domain.LevelRiskReject, fmt.Sprintf("%s rejected. %s", order, rej.Decision.Message))
		return res, nil
	}
	if err != nil {
		return res, err
	}

	res.Status = OrderFilled
	r.Observer.ObserveOrder(OrderFilled, risk.ReasonNone)
	r.record(ctx, domain.LevelInfo, r.Executor.Describe(*res.Trade))
	return res, nil
}

func (r *Rebalancer) abort(ctx context.Context, kind ErrorKind, op string, err error) error {
	r.record(ctx, domain.LevelCritical, fmt.Sprintf("Cycle aborted (%s) during %s: %v", kind, op, err))
	return &CycleError{Kind: kind, Op: op, Err: err}
}

// record journals an event; a failed ledger write is already logged by the journal
func (r *Rebalancer) record(ctx context.Context, level domain.LogLevel, msg string) {
	_ = r.Journal.Record(ctx, level, msg)
}
