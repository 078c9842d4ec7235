// Package handlers provides HTTP handlers for the security universe.
// The price feed writes through these endpoints; the engine only reads.
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
	"github.com/aristath/rebalancer/internal/modules/universe"
)

// Handler handles security HTTP requests
type Handler struct {
	securityRepo *universe.SecurityRepository
	log          zerolog.Logger
}

// NewHandler creates a new universe handler
func NewHandler(securityRepo *universe.SecurityRepository, log zerolog.Logger) *Handler {
	return &Handler{
		securityRepo: securityRepo,
		log:          log.With().Str("handler", "universe").Logger(),
	}
}

// RegisterRoutes registers all security routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/securities", func(r chi.Router) {
		r.Put("/", h.HandleUpsertSecurity)
		r.Get("/{id}", h.HandleGetSecurity)
		r.Put("/{id}/price", h.HandleUpdatePrice)
	})
}

// HandleGetSecurity handles GET /api/securities/{id}
func (h *Handler) HandleGetSecurity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid security id")
		return
	}

	security, err := h.securityRepo.GetByID(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int64("security_id", id).Msg("Failed to get security")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if security == nil {
		h.writeError(w, http.StatusNotFound, "security not found")
		return
	}

	h.writeData(w, http.StatusOK, security)
}

// HandleUpsertSecurity handles PUT /api/securities
func (h *Handler) HandleUpsertSecurity(w http.ResponseWriter, r *http.Request) {
	var security universe.Security
	if err := json.NewDecoder(r.Body).Decode(&security); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if security.ID <= 0 {
		h.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.securityRepo.Upsert(r.Context(), security); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"id": security.ID})
}

// HandleUpdatePrice handles PUT /api/securities/{id}/price
func (h *Handler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid security id")
		return
	}

	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.securityRepo.UpdatePrice(r.Context(), id, req.Price); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"id": id, "price": req.Price})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidPrice):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Security update failed")
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
