package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/strategies/{id}/snapshots", h.HandleListSnapshots)
	r.Post("/strategies/{id}/snapshots", h.HandleCreateSnapshot)
}
