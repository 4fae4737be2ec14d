package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fisr/internal/application"
	"github.com/sawpanic/fisr/internal/archive"
	"github.com/sawpanic/fisr/internal/config"
	"github.com/sawpanic/fisr/internal/domain/allocation"
	"github.com/sawpanic/fisr/internal/domain/rebalance"
	"github.com/sawpanic/fisr/internal/domain/risk"
	"github.com/sawpanic/fisr/internal/domain/sizing"
	"github.com/sawpanic/fisr/internal/domain/universe"
	"github.com/sawpanic/fisr/internal/eventlog"
	"github.com/sawpanic/fisr/internal/infrastructure/db"
	httpapi "github.com/sawpanic/fisr/internal/interfaces/http"
	"github.com/sawpanic/fisr/internal/interfaces/http/handlers"
	"github.com/sawpanic/fisr/internal/marketdata"
	"github.com/sawpanic/fisr/internal/persistence"
	"github.com/sawpanic/fisr/internal/scheduler"
)

// app holds the wired process
type app struct {
	cfg        *config.Config
	manager    *db.Manager
	ledger     persistence.Ledger
	journal    *eventlog.Journal
	source     marketdata.Source
	metrics    *httpapi.MetricsRegistry
	hub        *httpapi.LogHub
	rebalancer *application.Rebalancer
	archiver   *archive.Archiver
}

// buildApp wires every component from configuration
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	manager, err := db.NewManager(cfg.Database)
	if err != nil {
		return nil, err
	}
	ledger := manager.Ledger()

	a := &app{
		cfg:     cfg,
		manager: manager,
		ledger:  ledger,
		metrics: httpapi.NewMetricsRegistry(),
		hub:     httpapi.NewLogHub(),
	}
	a.journal = eventlog.NewJournal(ledger, log.Logger, func() string {
		return ledger.Now().Format(persistence.TimestampLayout)
	})
	a.journal.Subscribe(a.hub)

	a.source, err = marketdata.New(cfg.MarketData, marketdata.NewCache(cfg.Cache))
	if err != nil {
		a.Close()
		return nil, err
	}

	var durations universe.DurationSource
	if cfg.Universe.DurationRefresh.Enabled {
		durations = universe.NewScrapedDurations(cfg.Universe.DurationRefresh, universe.StaticDurations(cfg.Universe.Candidates))
	}

	a.rebalancer, err = application.NewRebalancer(application.Deps{
		Ledger:     ledger,
		Source:     a.source,
		Builder:    universe.NewBuilder(cfg.Universe.Candidates, cfg.Universe.Floor()),
		Durations:  durations,
		Solver:     allocation.NewSolver(cfg.Allocation),
		Gate:       rebalance.NewGate(cfg.Rebalance.DriftThreshold),
		Sizer:      sizing.NewSizer(cfg.Rebalance.MinTradeShares),
		Gatekeeper: risk.NewGatekeeper(cfg.Risk.Limits),
		Executor:   application.NewMockExecutor(),
		Journal:    a.journal,
		Observer:   a.metrics,
	}, application.Settings{
		Equity:   cfg.Risk.ReferenceEquity,
		Lookback: cfg.MarketData.Lookback,
		Interval: cfg.MarketData.Interval,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Database.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.archiver, err = archive.New(ctx, cfg.Archive, ledger, loc)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the ledger connection
func (a *app) Close() {
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing ledger failed")
		}
	}
}

// runners maps scheduler job types to the wired operations
func (a *app) runners() map[string]scheduler.Runner {
	return map[string]scheduler.Runner{
		scheduler.JobRebalance: func(ctx context.Context) ([]string, error) {
			report, err := a.rebalancer.RunCycle(ctx)
			if err != nil {
				return nil, err
			}
			return []string{fmt.Sprintf("%s: %d filled, %d rejected",
				report.Outcome, len(report.Filled()), len(report.Rejected()))}, nil
		},
		scheduler.JobArchive: func(ctx context.Context) ([]string, error) {
			day := a.ledger.Now().AddDate(0, 0, -1)
			res, err := a.archiver.ArchiveDay(ctx, day)
			if errors.Is(err, archive.ErrNothingToArchive) {
				log.Info().Str("day", res.Day).Msg("No trades to archive")
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []string{res.Location}, nil
		},
	}
}

// handlers builds the dashboard handlers over the wired components
func (a *app) handlers() *handlers.Handlers {
	return handlers.NewHandlers(handlers.Deps{
		Ledger:       a.ledger,
		LedgerHealth: a.manager.Health(),
		Source:       a.source,
		Durations:    a.cfg.Universe.Candidates,
		Equity:       a.cfg.Risk.ReferenceEquity,
		Lookback:     a.cfg.MarketData.Lookback,
		Interval:     a.cfg.MarketData.Interval,
		Journal:      a.journal,
		Breaker:      func() string { return marketdata.BreakerState(a.source) },
	})
}
