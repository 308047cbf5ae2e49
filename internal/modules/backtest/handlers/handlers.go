// Package handlers provides HTTP handlers for backtest runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/meridian/internal/modules/backtest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Runner runs and looks up backtests.
type Runner interface {
	RunBacktest(ctx context.Context, req backtest.RunRequest) (*backtest.Report, error)
	Simulate(ctx context.Context, req backtest.SimulateRequest) (*backtest.Report, error)
	GetRun(ctx context.Context, runID string) (*backtest.Report, error)
	ListRuns(ctx context.Context, strategyID string, limit int) ([]backtest.RunSummary, error)
}

// Handler handles backtest HTTP requests
type Handler struct {
	service Runner
	log     zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(service Runner, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRun handles POST /api/backtests/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req backtest.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	report, err := h.service.RunBacktest(r.Context(), req)
	if err != nil {
		h.handleError(w, err, "Backtest run failed")
		return
	}

	h.writeData(w, http.StatusCreated, report)
}

// HandleSimulate handles POST /api/backtests/simulate
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req backtest.SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	report, err := h.service.Simulate(r.Context(), req)
	if err != nil {
		h.handleError(w, err, "Simulation failed")
		return
	}

	h.writeData(w, http.StatusOK, report)
}

// HandleGetRun handles GET /api/backtests/{runID}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	report, err := h.service.GetRun(r.Context(), runID)
	if err != nil {
		h.handleError(w, err, "Failed to get backtest run")
		return
	}

	h.writeData(w, http.StatusOK, report)
}

// HandleListRuns handles GET /api/backtests
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	runs, err := h.service.ListRuns(r.Context(), r.URL.Query().Get("strategy_id"), limit)
	if err != nil {
		h.handleError(w, err, "Failed to list backtest runs")
		return
	}
	if runs == nil {
		runs = []backtest.RunSummary{}
	}

	h.writeData(w, http.StatusOK, runs)
}

// statusFor maps backtest errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backtest.ErrInvalidRun):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, backtest.ErrMissingPriceData):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg(msg)
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
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
