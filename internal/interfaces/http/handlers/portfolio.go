package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fisr/internal/domain"
	"github.com/sawpanic/fisr/internal/domain/portfolio"
	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/marketdata"
)

// Portfolio handles GET /api/portfolio
func (h *Handlers) Portfolio(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Portfolio snapshot failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to read portfolio")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Snapshot values the book at live prices. Cash is reference equity less net
// buy value, floored at zero. A pricing failure is reported in PriceError and
// leaves positions unpriced; only ledger failures are returned.
func (h *Handlers) Snapshot(ctx context.Context) (httpContracts.PortfolioResponse, error) {
	holdings, err := h.Ledger.CurrentHoldings(ctx)
	if err != nil {
		return httpContracts.PortfolioResponse{}, fmt.Errorf("read holdings: %w", err)
	}
	totals, err := h.Ledger.TotalsBySide(ctx)
	if err != nil {
		return httpContracts.PortfolioResponse{}, fmt.Errorf("read trade totals: %w", err)
	}

	resp := httpContracts.PortfolioResponse{
		AsOf:      h.Ledger.Now(),
		Positions: []httpContracts.PositionView{},
		Cash:      math.Max(0, h.Equity-totals.Buy+totals.Sell),
	}

	if ks, err := h.Ledger.GetConfig(ctx, domain.ConfigKillSwitch); err == nil {
		resp.KillSwitch = ks
		resp.Halted = ks <= 0
	}
	if target, err := h.Ledger.GetConfig(ctx, domain.ConfigTargetDuration); err == nil {
		resp.TargetDuration = target
	}
	if sig, err := h.Ledger.LatestSignal(ctx); err == nil && sig != nil {
		t := sig.TargetDuration
		resp.SignalTarget = &t
	}

	prices := domain.Prices{}
	if len(holdings) > 0 && h.Source != nil {
		snap, err := h.Source.Fetch(ctx, marketdata.Request{
			Tickers:  tickersOf(holdings),
			Lookback: h.Lookback,
			Interval: h.Interval,
		})
		if err != nil {
			resp.PriceError = err.Error()
		} else {
			prices = snap.Prices()
		}
	}

	for _, t := range tickersOf(holdings) {
		pv := httpContracts.PositionView{Ticker: t, Quantity: holdings[t], Duration: h.Durations[t]}
		if p, ok := prices[t]; ok && p > 0 {
			pv.Price = p
			pv.MarketValue = p * pv.Quantity
			pv.Priced = true
		}
		resp.MarketValue += pv.MarketValue
		resp.Positions = append(resp.Positions, pv)
	}
	if resp.MarketValue > 0 {
		for i := range resp.Positions {
			resp.Positions[i].Weight = resp.Positions[i].MarketValue / resp.MarketValue
		}
	}
	resp.Equity = resp.MarketValue + resp.Cash
	resp.CurrentDuration = portfolio.Assess(holdings, prices, h.Durations).Duration
	return resp, nil
}

func tickersOf(holdings domain.Holdings) []string {
	out := make([]string, 0, len(holdings))
	for t := range holdings {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
