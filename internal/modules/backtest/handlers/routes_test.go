package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/meridian/internal/modules/backtest"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	err        error
	lastListID string
	lastLimit  int
}

func (s *stubRunner) RunBacktest(_ context.Context, req backtest.RunRequest) (*backtest.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backtest.Report{RunID: "run-1", StrategyID: req.StrategyID, Turnover: 1}, nil
}

func (s *stubRunner) Simulate(_ context.Context, req backtest.SimulateRequest) (*backtest.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backtest.Report{RunID: "sim", StartNAV: req.StartNAV}, nil
}

func (s *stubRunner) GetRun(_ context.Context, runID string) (*backtest.Report, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backtest.Report{RunID: runID}, nil
}

func (s *stubRunner) ListRuns(_ context.Context, strategyID string, limit int) ([]backtest.RunSummary, error) {
	s.lastListID, s.lastLimit = strategyID, limit
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func newRouter(service Runner) chi.Router {
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		NewHandler(service, zerolog.Nop()).RegisterRoutes(r)
	})
	return router
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestHandleRun(t *testing.T) {
	router := newRouter(&stubRunner{})

	rec := do(t, router, http.MethodPost, "/api/backtests/run", backtest.RunRequest{
		StrategyID: "momo", Start: "2024-01-01", End: "2024-02-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var report backtest.Report
	decodeData(t, rec, &report)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "momo", report.StrategyID)
}

func TestHandleRun_BadBody(t *testing.T) {
	router := newRouter(&stubRunner{})

	req := httptest.NewRequest(http.MethodPost, "/api/backtests/run", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSimulate(t *testing.T) {
	router := newRouter(&stubRunner{})

	rec := do(t, router, http.MethodPost, "/api/backtests/simulate", backtest.SimulateRequest{
		StartNAV: 5000,
		Targets: []backtest.DailyTarget{{
			Date:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Allocations: []backtest.Allocation{{Symbol: "A", Weight: 1}},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var report backtest.Report
	decodeData(t, rec, &report)
	assert.Equal(t, 5000.0, report.StartNAV)
}

func TestHandleGetRun(t *testing.T) {
	router := newRouter(&stubRunner{})

	rec := do(t, router, http.MethodGet, "/api/backtests/abc-123", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report backtest.Report
	decodeData(t, rec, &report)
	assert.Equal(t, "abc-123", report.RunID)
}

func TestHandleListRuns(t *testing.T) {
	stub := &stubRunner{}
	router := newRouter(stub)

	rec := do(t, router, http.MethodGet, "/api/backtests?strategy_id=momo&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "momo", stub.lastListID)
	assert.Equal(t, 5, stub.lastLimit)

	var runs []backtest.RunSummary
	decodeData(t, rec, &runs)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	rec = do(t, router, http.MethodGet, "/api/backtests?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{fmt.Errorf("%w: no signals", backtest.ErrInvalidRun), http.StatusBadRequest},
		{fmt.Errorf("%w: abc", backtest.ErrRunNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: 3 of 4", backtest.ErrMissingPriceData), http.StatusUnprocessableEntity},
		{fmt.Errorf("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router := newRouter(&stubRunner{err: tt.err})

			rec := do(t, router, http.MethodGet, "/api/backtests/abc", nil)
			assert.Equal(t, tt.expected, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.err.Error(), body["error"])
		})
	}
}
