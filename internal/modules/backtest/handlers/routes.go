package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtests", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Post("/run", h.HandleRun)
		r.Post("/simulate", h.HandleSimulate)
		r.Get("/{runID}", h.HandleGetRun)
	})
}
