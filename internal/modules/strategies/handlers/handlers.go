// Package handlers provides HTTP handlers for strategy management.
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
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

// Handler handles strategy HTTP requests
type Handler struct {
	service *strategies.Service
	log     zerolog.Logger
}

// NewHandler creates a new strategy handler
func NewHandler(service *strategies.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "strategies").Logger(),
	}
}

// HandleCreateStrategy handles POST /api/strategies
func (h *Handler) HandleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategies.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID <= 0 {
		h.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	strategy, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "Failed to create strategy")
		return
	}

	h.writeData(w, http.StatusCreated, strategy)
}

// HandleListStrategies handles GET /api/strategies?user_id=
func (h *Handler) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	var (
		list []strategies.Strategy
		err  error
	)

	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			h.writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		list, err = h.service.ListByUser(r.Context(), userID)
	} else {
		list, err = h.service.ListAll(r.Context())
	}
	if err != nil {
		h.writeServiceError(w, err, "Failed to list strategies")
		return
	}
	if list == nil {
		list = []strategies.Strategy{}
	}

	h.writeData(w, http.StatusOK, list)
}

// HandleGetStrategy handles GET /api/strategies/{id}
func (h *Handler) HandleGetStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	strategy, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get strategy")
		return
	}

	h.writeData(w, http.StatusOK, strategy)
}

// HandleUpdateStrategy handles PUT /api/strategies/{id}
func (h *Handler) HandleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	var req strategies.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	strategy, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err, "Failed to update strategy")
		return
	}

	h.writeData(w, http.StatusOK, strategy)
}

// HandleDeleteStrategy handles DELETE /api/strategies/{id}
func (h *Handler) HandleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "Failed to delete strategy")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRevalue handles POST /api/strategies/{id}/revalue
func (h *Handler) HandleRevalue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Revalue(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Failed to revalue strategy")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"strategy_id": id,
		"updated":     updated,
	})
}

func (h *Handler) strategyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid strategy id")
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
	case errors.Is(err, domain.ErrInvalidPrice), errors.Is(err, domain.ErrAllocationInvariant),
		errors.Is(err, strategies.ErrInvalidRequest):
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
