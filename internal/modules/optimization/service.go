package optimization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/aristath/meridian/internal/modules/risk"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// DefaultWindowDays is the calendar-day lookback used when a request resolves its
// return window from stored closes without naming one.
const DefaultWindowDays = 252

// ServiceConfig holds the optimizer service settings.
type ServiceConfig struct {
	Solver            SolverConfig
	Shrinkage         float64
	DefaultWindowDays int
}

// Service orchestrates covariance estimation, the constrained solve and risk analytics.
type Service struct {
	history CloseHistoryProvider
	cache   *CovarianceCache
	metrics *metrics.Registry
	cfg     ServiceConfig
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a new optimizer service. history and cache may be nil, in which
// case requests must carry their return window inline and nothing is cached.
func NewService(
	history CloseHistoryProvider,
	cache *CovarianceCache,
	registry *metrics.Registry,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = DefaultWindowDays
	}
	return &Service{
		history: history,
		cache:   cache,
		metrics: registry,
		cfg:     cfg,
		now:     time.Now,
		log:     log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize solves one request and attaches VaR and factor exposures to the weights.
func (s *Service) Optimize(ctx context.Context, req OptimizationRequest) (*OptimizationResponse, error) {
	start := time.Now()

	resp, result, err := s.optimize(ctx, req)
	status := solveStatus(result, err)
	s.metrics.RecordSolve(status, result.Iterations, result.Degenerate, time.Since(start))

	if err != nil {
		s.log.Warn().
			Err(err).
			Int("assets", len(req.Universe)).
			Str("status", status).
			Interface("constraints", req.Constraints().Summary()).
			Msg("Optimization failed")
		return nil, err
	}

	if result.Degenerate {
		s.log.Warn().
			Int("assets", len(req.Universe)).
			Msg("Covariance matrix is singular, solved against it unchanged")
	}

	s.log.Info().
		Int("assets", len(req.Universe)).
		Int("iterations", result.Iterations).
		Bool("converged", result.Converged).
		Bool("cache_hit", resp.CacheHit).
		Float64("gross", resp.GrossExposure).
		Float64("var95", resp.VaR95).
		Dur("duration", time.Since(start)).
		Msg("Optimization completed")

	return resp, nil
}

func (s *Service) optimize(ctx context.Context, req OptimizationRequest) (*OptimizationResponse, Result, error) {
	if err := req.Validate(); err != nil {
		return nil, Result{}, err
	}

	cov, cacheHit, err := s.covariance(ctx, &req)
	if err != nil {
		return nil, Result{}, err
	}

	problem := Problem{
		ExpectedReturns: req.ExpectedReturns,
		Covariance:      cov,
		Constraints:     req.Constraints(),
		WarmStart:       req.PrevWeights,
	}
	result, err := Solve(problem, s.cfg.Solver)
	if err != nil {
		return nil, result, err
	}

	var95, err := risk.ParametricVaR(result.Weights, cov.Symmetric(), risk.Z95)
	if err != nil {
		return nil, result, fmt.Errorf("failed to compute VaR: %w", err)
	}
	vol, err := risk.PortfolioVolatility(result.Weights, cov.Symmetric())
	if err != nil {
		return nil, result, fmt.Errorf("failed to compute volatility: %w", err)
	}
	exposures, err := risk.FactorExposures(result.Weights, req.Loadings())
	if err != nil {
		return nil, result, fmt.Errorf("failed to compute exposures: %w", err)
	}

	weights := make([]SymbolWeight, len(req.Universe))
	for i, symbol := range req.Universe {
		weights[i] = SymbolWeight{Symbol: symbol, Weight: result.Weights[i]}
	}

	return &OptimizationResponse{
		Weights:       weights,
		VaR95:         var95,
		Exposures:     exposures,
		Volatility:    vol,
		GrossExposure: floats.Norm(result.Weights, 1),
		Iterations:    result.Iterations,
		Converged:     result.Converged,
		Degenerate:    result.Degenerate,
		CacheHit:      cacheHit,
	}, result, nil
}

// covariance estimates Σ from the inline window, or from stored closes through the cache.
func (s *Service) covariance(ctx context.Context, req *OptimizationRequest) (CovarianceMatrix, bool, error) {
	shrinkage := s.cfg.Shrinkage
	if req.Shrinkage != nil {
		shrinkage = *req.Shrinkage
	}

	if len(req.Returns) > 0 {
		cov, err := EstimateCovariance(ReturnSeries{Symbols: req.Universe, Rows: req.Returns}, shrinkage)
		return cov, false, err
	}

	if s.history == nil {
		return CovarianceMatrix{}, false, fmt.Errorf("%w: no returns supplied and no price history configured", ErrInsufficientData)
	}

	asOf := s.now().UTC().Truncate(24 * time.Hour)
	if req.AsOf != "" {
		asOf, _ = time.Parse(DateLayout, req.AsOf)
	}
	window := req.ReturnsWindowDays
	if window == 0 {
		window = s.cfg.DefaultWindowDays
	}

	key := CovarianceKey(req.Universe, asOf.Format(DateLayout), window, shrinkage)
	if s.cache != nil {
		cov, found, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Covariance cache lookup failed")
		}
		s.metrics.RecordCacheLookup(found)
		if found && cov.N() == len(req.Universe) {
			return cov, true, nil
		}
	}

	_, closes, err := s.history.GetCloses(ctx, req.Universe, asOf.AddDate(0, 0, -window), asOf)
	if err != nil {
		return CovarianceMatrix{}, false, fmt.Errorf("failed to load closes: %w", err)
	}
	series, err := LogReturns(req.Universe, closes)
	if err != nil {
		return CovarianceMatrix{}, false, err
	}

	s.log.Debug().
		Int("observations", series.Observations()).
		Int("window_days", window).
		Str("asof", asOf.Format(DateLayout)).
		Msg("Resolved return window from history")

	cov, err := EstimateCovariance(series, shrinkage)
	if err != nil {
		return CovarianceMatrix{}, false, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, cov); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Failed to cache covariance")
		}
	}
	return cov, false, nil
}

func solveStatus(result Result, err error) string {
	switch {
	case errors.Is(err, ErrInfeasibleConstraints):
		return metrics.SolveInfeasible
	case err != nil:
		return metrics.SolveFailed
	case result.Converged:
		return metrics.SolveConverged
	default:
		return metrics.SolveExhausted
	}
}
