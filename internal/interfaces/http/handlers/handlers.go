package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fisr/internal/eventlog"
	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/marketdata"
	"github.com/sawpanic/fisr/internal/persistence"
)

type ctxKey string

// RequestIDKey is the context key the request-ID middleware stores under
const RequestIDKey ctxKey = "request_id"

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Deps are the read models and the single mutator the dashboard uses
type Deps struct {
	Ledger       persistence.Ledger
	LedgerHealth persistence.RepositoryHealth
	Source       marketdata.Source  // nil disables live prices
	Durations    map[string]float64 // ticker -> duration for the book's duration
	Equity       float64
	Lookback     time.Duration
	Interval     string
	Journal      *eventlog.Journal // optional; operator changes are journaled when set
	Breaker      func() string     // optional market data breaker state
}

// Handlers manages all HTTP endpoint handlers
type Handlers struct {
	Deps
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{Deps: deps}
}

// writeJSON writes JSON response with proper error handling
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes standardized error response
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(RequestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}

	h.writeJSON(w, status, httpContracts.ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

// NotFound handles 404 responses
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}

// limit parses ?limit= with a default and an upper bound
func limit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, true
}
