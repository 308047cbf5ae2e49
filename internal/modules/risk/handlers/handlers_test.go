package handlers

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/meridian/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postRisk(t *testing.T, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	handler := NewHandler(0.5, zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/api/risk/portfolio", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	handler.HandlePortfolioRisk(w, req)
	return w
}

func TestHandlePortfolioRisk_Covariance(t *testing.T) {
	w := postRisk(t, PortfolioRiskRequest{
		Weights:    []float64{0.5, 0.5},
		Covariance: [][]float64{{0.04, 0}, {0, 0.04}},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))

	assert.Contains(t, response, "data")
	assert.Contains(t, response, "metadata")

	data := response["data"].(map[string]interface{})
	vol := math.Sqrt(0.02)
	assert.InDelta(t, vol, data["volatility"].(float64), 1e-12)
	assert.InDelta(t, -1.65*vol, data["var_95"].(float64), 1e-12)
	assert.Less(t, data["var_99"].(float64), data["var_95"].(float64))
	z99, err := risk.ZScore(0.99)
	require.NoError(t, err)
	assert.InDelta(t, -z99*vol, data["var_99"].(float64), 1e-12)
	assert.Equal(t, false, data["degenerate"])
	assert.Len(t, data["exposures"].([]interface{}), 2)
}

func TestHandlePortfolioRisk_ReturnsWithLoadings(t *testing.T) {
	w := postRisk(t, PortfolioRiskRequest{
		Weights: []float64{0.6, 0.4},
		Returns: [][]float64{
			{0.01, 0.02},
			{-0.01, 0.00},
			{0.02, -0.01},
		},
		FactorLoadings: [][]float64{{1.0}, {0.5}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	data := response["data"].(map[string]interface{})

	exposures := data["exposures"].([]interface{})
	require.Len(t, exposures, 1)
	assert.InDelta(t, 0.8, exposures[0].(float64), 1e-12)
}

func TestHandlePortfolioRisk_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     PortfolioRiskRequest
		expected int
	}{
		{"no weights", PortfolioRiskRequest{Covariance: [][]float64{{1}}}, http.StatusBadRequest},
		{"no risk model", PortfolioRiskRequest{Weights: []float64{1}}, http.StatusBadRequest},
		{"both models", PortfolioRiskRequest{Weights: []float64{1}, Covariance: [][]float64{{1}}, Returns: [][]float64{{0.1}, {0.2}}}, http.StatusBadRequest},
		{"short window", PortfolioRiskRequest{Weights: []float64{1}, Returns: [][]float64{{0.1}}}, http.StatusUnprocessableEntity},
		{"size mismatch", PortfolioRiskRequest{Weights: []float64{0.5, 0.5}, Covariance: [][]float64{{1}}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postRisk(t, tt.body)
			assert.Equal(t, tt.expected, w.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}
