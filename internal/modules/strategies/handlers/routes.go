package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all strategy routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/strategies", h.HandleCreateStrategy)
	r.Get("/strategies", h.HandleListStrategies)
	r.Get("/strategies/{id}", h.HandleGetStrategy)
	r.Put("/strategies/{id}", h.HandleUpdateStrategy)
	r.Delete("/strategies/{id}", h.HandleDeleteStrategy)
	r.Post("/strategies/{id}/revalue", h.HandleRevalue)
}
