// Package handlers provides HTTP handlers for strategy snapshots.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/snapshots"
)

// Handler handles snapshot HTTP requests
type Handler struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler
func NewHandler(service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleListSnapshots handles GET /api/strategies/{id}/snapshots
func (h *Handler) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), strategyID)
	if err != nil {
		h.writeServiceError(w, err, strategyID)
		return
	}

	h.writeData(w, http.StatusOK, list)
}

// HandleCreateSnapshot handles POST /api/strategies/{id}/snapshots
func (h *Handler) HandleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.service.Take(r.Context(), strategyID)
	if err != nil {
		h.writeServiceError(w, err, strategyID)
		return
	}

	h.writeData(w, http.StatusCreated, snapshot)
}

func (h *Handler) strategyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid strategy id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, strategyID int64) {
	if errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Strategy not found")
		return
	}
	h.log.Error().Err(err).Int64("strategy_id", strategyID).Msg("Snapshot request failed")
	h.writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
