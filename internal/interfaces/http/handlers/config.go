package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fisr/internal/domain"
	httpContracts "github.com/sawpanic/fisr/internal/http"
	"github.com/sawpanic/fisr/internal/persistence"
)

// ListConfig handles GET /api/config
func (h *Handlers) ListConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.ListConfig(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("List config failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to read config")
		return
	}
	if entries == nil {
		entries = []persistence.ConfigEntry{}
	}
	h.writeJSON(w, http.StatusOK, httpContracts.ConfigResponse{Config: entries})
}

// GetConfig handles GET /api/config/{key}
func (h *Handlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	v, err := h.Ledger.GetConfig(r.Context(), key)
	if errors.Is(err, persistence.ErrConfigMissing) {
		h.writeError(w, r, http.StatusNotFound, "config_missing", fmt.Sprintf("config key %s is not set", key))
		return
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Get config failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to read config")
		return
	}
	h.writeJSON(w, http.StatusOK, persistence.ConfigEntry{Key: key, Value: v})
}

// UpdateConfig handles PUT /api/config/{key} with body {"value": x}
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req httpContracts.ConfigUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", `body must be {"value": <number>}`)
		return
	}
	v := *req.Value
	if err := domain.ValidateConfigValue(key, v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_value", err.Error())
		return
	}

	if err := h.Ledger.UpdateConfig(r.Context(), key, v); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Update config failed")
		h.writeError(w, r, http.StatusInternalServerError, "ledger_error", "failed to update config")
		return
	}
	if h.Journal != nil {
		_ = h.Journal.Recordf(r.Context(), domain.LevelInfo, "Operator set %s to %.2f", key, v)
	}
	h.writeJSON(w, http.StatusOK, persistence.ConfigEntry{Key: key, Value: v})
}
