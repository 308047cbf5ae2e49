// Package handlers provides HTTP handlers for risk metrics operations.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aristath/meridian/internal/modules/optimization"
	"github.com/aristath/meridian/internal/modules/risk"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// PortfolioRiskRequest is the body of POST /api/risk/portfolio. Exactly one of
// Covariance or Returns supplies the risk model.
type PortfolioRiskRequest struct {
	Weights        []float64   `json:"weights"`
	Covariance     [][]float64 `json:"covariance,omitempty"`
	Returns        [][]float64 `json:"returns,omitempty"`
	Shrinkage      *float64    `json:"shrinkage,omitempty"`
	FactorLoadings [][]float64 `json:"factor_loadings,omitempty"`
}

// Handler handles risk metrics HTTP requests
type Handler struct {
	shrinkage float64
	log       zerolog.Logger
}

// NewHandler creates a new risk metrics handler
func NewHandler(shrinkage float64, log zerolog.Logger) *Handler {
	return &Handler{
		shrinkage: shrinkage,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// HandlePortfolioRisk handles POST /api/risk/portfolio
func (h *Handler) HandlePortfolioRisk(w http.ResponseWriter, r *http.Request) {
	var req PortfolioRiskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	cov, err := h.riskModel(req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, optimization.ErrInsufficientData) {
			status = http.StatusUnprocessableEntity
		}
		h.writeError(w, status, err.Error())
		return
	}

	var loadings mat.Matrix
	if len(req.FactorLoadings) > 0 {
		if loadings, err = denseFromRows(req.FactorLoadings); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	exposures, err := risk.FactorExposures(req.Weights, loadings)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vol, err := risk.PortfolioVolatility(req.Weights, cov.Symmetric())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	z99, err := risk.ZScore(0.99)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute 99% quantile")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var95, err := risk.ParametricVaR(req.Weights, cov.Symmetric(), risk.Z95)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var99, err := risk.ParametricVaR(req.Weights, cov.Symmetric(), z99)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"var_95":     var95,
			"var_99":     var99,
			"volatility": vol,
			"exposures":  exposures,
			"degenerate": cov.IsSingular(),
			"method":     "parametric",
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) riskModel(req PortfolioRiskRequest) (optimization.CovarianceMatrix, error) {
	n := len(req.Weights)
	if n == 0 {
		return optimization.CovarianceMatrix{}, fmt.Errorf("weights are required")
	}

	switch {
	case len(req.Covariance) > 0 && len(req.Returns) > 0:
		return optimization.CovarianceMatrix{}, fmt.Errorf("supply either covariance or returns, not both")
	case len(req.Covariance) > 0:
		return optimization.NewCovarianceMatrix(req.Covariance)
	case len(req.Returns) > 0:
		shrinkage := h.shrinkage
		if req.Shrinkage != nil {
			shrinkage = *req.Shrinkage
		}
		symbols := make([]string, n)
		for i := range symbols {
			symbols[i] = fmt.Sprintf("asset_%d", i)
		}
		return optimization.EstimateCovariance(optimization.ReturnSeries{Symbols: symbols, Rows: req.Returns}, shrinkage)
	default:
		return optimization.CovarianceMatrix{}, fmt.Errorf("covariance or returns are required")
	}
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	k := len(rows[0])
	if k == 0 {
		return nil, fmt.Errorf("factor loadings have no factors")
	}
	m := mat.NewDense(len(rows), k, nil)
	for i, row := range rows {
		if len(row) != k {
			return nil, fmt.Errorf("factor loading row %d has %d factors, expected %d", i, len(row), k)
		}
		m.SetRow(i, row)
	}
	return m, nil
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
