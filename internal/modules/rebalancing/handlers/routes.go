package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rebalancing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/strategies/{id}/rebalance/pending", h.HandleGetPending)
	r.Post("/strategies/{id}/rebalance/calculate", h.HandleCalculate)
	r.Post("/strategies/{id}/rebalance/execute", h.HandleExecute)
	r.Get("/strategies/{id}/rebalancing-history", h.HandleGetHistory)
	r.Post("/portfolios/{id}/membership", h.HandleMembershipChange)

	r.Route("/rebalancing", func(r chi.Router) {
		r.Get("/thresholds", h.HandleGetThresholds)
		r.Post("/{recordID}/undo", h.HandleUndo)
	})
}
