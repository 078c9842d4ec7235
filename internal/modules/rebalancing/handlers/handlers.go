// Package handlers provides HTTP handlers for rebalancing operations.
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
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
)

// Handler handles rebalancing HTTP requests
type Handler struct {
	service *rebalancing.Service
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(
	service *rebalancing.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleCalculate handles POST /api/strategies/{id}/rebalance/calculate
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := h.pathID(w, r, "id", "invalid strategy id")
	if !ok {
		return
	}

	calc, err := h.service.CalculateRebalancing(r.Context(), strategyID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to calculate rebalancing")
		return
	}

	h.writeData(w, http.StatusOK, calc)
}

// HandleGetPending handles GET /api/strategies/{id}/rebalance/pending
func (h *Handler) HandleGetPending(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := h.pathID(w, r, "id", "invalid strategy id")
	if !ok {
		return
	}

	calc, err := h.service.GetPendingRebalancing(r.Context(), strategyID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get pending rebalancing")
		return
	}

	h.writeData(w, http.StatusOK, calc)
}

// HandleExecute handles POST /api/strategies/{id}/rebalance/execute
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := h.pathID(w, r, "id", "invalid strategy id")
	if !ok {
		return
	}

	result, err := h.service.ExecuteRebalancing(r.Context(), strategyID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to execute rebalancing")
		return
	}

	if result == nil {
		h.writeData(w, http.StatusOK, map[string]interface{}{
			"executed": false,
			"message":  "No pending rebalancing",
		})
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"executed": true,
		"result":   result,
	})
}

// HandleGetHistory handles GET /api/strategies/{id}/rebalancing-history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	strategyID, ok := h.pathID(w, r, "id", "invalid strategy id")
	if !ok {
		return
	}

	history, err := h.service.GetRebalancingHistory(r.Context(), strategyID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get rebalancing history")
		return
	}

	h.writeData(w, http.StatusOK, history)
}

// HandleUndo handles POST /api/rebalancing/{recordID}/undo.
// recordID is either the numeric id or the record's UUID.
func (h *Handler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "recordID")

	recordID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		recordID, err = h.service.RecordIDByUUID(r.Context(), ref)
		if err != nil {
			h.writeServiceError(w, err, "Failed to resolve rebalancing record")
			return
		}
	}

	result, err := h.service.UndoRebalancing(r.Context(), recordID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to undo rebalancing")
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleMembershipChange handles POST /api/portfolios/{id}/membership
func (h *Handler) HandleMembershipChange(w http.ResponseWriter, r *http.Request) {
	portfolioID, ok := h.pathID(w, r, "id", "invalid portfolio id")
	if !ok {
		return
	}

	var change rebalancing.MembershipChange
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.HandlePortfolioChange(r.Context(), portfolioID, change)
	if err != nil {
		h.writeServiceError(w, err, "Failed to propagate portfolio change")
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleGetThresholds handles GET /api/rebalancing/thresholds
func (h *Handler) HandleGetThresholds(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, h.service.Thresholds())
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param, message string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, message)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidPrice), errors.Is(err, domain.ErrAllocationInvariant):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg(logMsg)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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
