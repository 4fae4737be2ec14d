package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/persistence"
)

// Trades handles GET /api/trades?limit=N or ?day=YYYY-MM-DD
func (h *Handlers) Trades(w http.ResponseWriter, r *http.Request) {
	var (
		trades []persistence.Trade
		err    error
	)
	if day := r.URL.Query().Get("day"); day != "" {
		d, perr := time.ParseInLocation(persistence.DayLayout, day, h.Ledger.Now().Location())
		if perr != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_day", "day must be YYYY-MM-DD")
			return
		}
		trades, err = h.Ledger.ListTradesForDay(r.Context(), d)
	} else {
		n, ok := limit(r)
		if !ok {
			h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		trades, err = h.Ledger.ListTrades(r.Context(), n)
	}
	if err != nil {
		log.Error().Err(err).Msg("List trades failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to read trades")
		return
	}
	if trades == nil {
		trades = []persistence.Trade{}
	}
	h.writeJSON(w, http.StatusOK, httpContracts.TradesResponse{Trades: trades, Count: len(trades)})
}

// Signals handles GET /api/signals?limit=N
func (h *Handlers) Signals(w http.ResponseWriter, r *http.Request) {
	n, ok := limit(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
		return
	}
	signals, err := h.Ledger.ListSignals(r.Context(), n)
	if err != nil {
		log.Error().Err(err).Msg("List signals failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to read signals")
		return
	}
	if signals == nil {
		signals = []persistence.Signal{}
	}
	h.writeJSON(w, http.StatusOK, httpContracts.SignalsResponse{Signals: signals, Count: len(signals)})
}

// Logs handles GET /api/logs?limit=N&level=RISK_REJECT
func (h *Handlers) Logs(w http.ResponseWriter, r *http.Request) {
	n, ok := limit(r)
	if !ok {
		h.writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
		return
	}
	entries, err := h.Ledger.ListLogs(r.Context(), n, r.URL.Query().Get("level"))
	if err != nil {
		log.Error().Err(err).Msg("List logs failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to read logs")
		return
	}
	if entries == nil {
		entries = []persistence.LogEntry{}
	}
	h.writeJSON(w, http.StatusOK, httpContracts.LogsResponse{Logs: entries, Count: len(entries)})
}
