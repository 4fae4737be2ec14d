package handlers

import (
	"net/http"
	"time"

	"github.com/sawpanic/fisr/internal/domain"
	httpContracts "github.com/sawpanic/fisr/internal/http"
)

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := httpContracts.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	}

	if h.LedgerHealth != nil {
		resp.Ledger = h.LedgerHealth.Health(r.Context())
		if !resp.Ledger.Healthy {
			resp.Status = "down"
		}
	}

	if h.Source != nil {
		resp.MarketData.Name = h.Source.Name()
	}
	resp.MarketData.State = "closed"
	if h.Breaker != nil {
		resp.MarketData.State = h.Breaker()
	}
	if resp.MarketData.State != "closed" && resp.Status == "healthy" {
		resp.Status = "degraded"
	}

	if ks, err := h.Ledger.GetConfig(r.Context(), domain.ConfigKillSwitch); err == nil {
		resp.KillSwitch = &ks
	}

	status := http.StatusOK
	if resp.Status == "down" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}
