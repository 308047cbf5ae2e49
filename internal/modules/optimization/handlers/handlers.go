// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/meridian/internal/modules/optimization"
	"github.com/rs/zerolog"
)

// Optimizer solves optimization requests.
type Optimizer interface {
	Optimize(ctx context.Context, req optimization.OptimizationRequest) (*optimization.OptimizationResponse, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	service Optimizer
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service Optimizer, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimization.OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Optimization failed")
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": resp,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// statusFor maps optimizer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, optimization.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, optimization.ErrInsufficientData), errors.Is(err, optimization.ErrInfeasibleConstraints):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
