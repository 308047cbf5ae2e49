package backtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/aristath/meridian/internal/modules/marketdata"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultStartNAV is the starting NAV of signal-driven runs.
const DefaultStartNAV = 1_000_000.0

// SignalSource loads a strategy's stored signals.
type SignalSource interface {
	GetSignals(ctx context.Context, strategyID string, start, end time.Time) ([]marketdata.Signal, error)
}

// BarSource loads stored bars keyed by symbol.
type BarSource interface {
	GetBars(ctx context.Context, symbols []string, start, end time.Time) (map[string][]Bar, error)
}

// RunStore persists reports.
type RunStore interface {
	Save(ctx context.Context, report Report) error
	Get(ctx context.Context, runID string) (*Report, error)
	List(ctx context.Context, strategyID string, limit int) ([]RunSummary, error)
}

// ServiceConfig holds the backtest service settings.
type ServiceConfig struct {
	StartNAV      float64
	Engine        EngineConfig
	TopN          int
	SyntheticBars bool
	SyntheticSeed int64 // 0 seeds from the clock
}

// RunRequest asks for a signal-driven backtest over [Start, End].
type RunRequest struct {
	StrategyID string   `json:"strategy_id"`
	Start      string   `json:"start"`
	End        string   `json:"end"`
	CostsBps   *float64 `json:"costs_bps,omitempty"`
}

// Validate checks the request and returns its parsed date range.
func (r RunRequest) Validate() (time.Time, time.Time, error) {
	if r.StrategyID == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: strategy_id is required", ErrInvalidRun)
	}
	start, err := time.Parse(marketdata.DateLayout, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start must be YYYY-MM-DD", ErrInvalidRun)
	}
	end, err := time.Parse(marketdata.DateLayout, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be YYYY-MM-DD", ErrInvalidRun)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end is before start", ErrInvalidRun)
	}
	if r.CostsBps != nil && *r.CostsBps < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: costs_bps must be non-negative", ErrInvalidRun)
	}
	return start, end, nil
}

// SimulateRequest runs the simulator over caller-supplied targets and bars.
type SimulateRequest struct {
	StartNAV float64          `json:"start_nav"`
	Targets  []DailyTarget    `json:"targets"`
	Bars     map[string][]Bar `json:"bars"`
	Config   *EngineConfig    `json:"config,omitempty"`
}

// Service resolves signals and bars, runs the simulator and stores reports.
type Service struct {
	signals SignalSource
	bars    BarSource
	runs    RunStore
	metrics *metrics.Registry
	cfg     ServiceConfig
	newID   func() string
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates a new backtest service. runs may be nil, in which case reports
// are not persisted.
func NewService(
	signals SignalSource,
	bars BarSource,
	runs RunStore,
	registry *metrics.Registry,
	cfg ServiceConfig,
	log zerolog.Logger,
) *Service {
	if cfg.StartNAV <= 0 {
		cfg.StartNAV = DefaultStartNAV
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	return &Service{
		signals: signals,
		bars:    bars,
		runs:    runs,
		metrics: registry,
		cfg:     cfg,
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
		log:     log.With().Str("component", "backtest").Logger(),
	}
}

// RunBacktest ranks the strategy's signals into daily targets, replays them against
// stored bars and persists the report.
func (s *Service) RunBacktest(ctx context.Context, req RunRequest) (*Report, error) {
	start := time.Now()

	report, err := s.runBacktest(ctx, req)
	s.record(report, err, time.Since(start))
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("strategy_id", req.StrategyID).
			Int("missing_prices", report.MissingPrices).
			Msg("Backtest failed")
		return nil, err
	}

	s.logReport(report, time.Since(start))
	return &report, nil
}

func (s *Service) runBacktest(ctx context.Context, req RunRequest) (Report, error) {
	start, end, err := req.Validate()
	if err != nil {
		return Report{}, err
	}
	if s.signals == nil || s.bars == nil {
		return Report{}, fmt.Errorf("backtest service has no history store")
	}

	signals, err := s.signals.GetSignals(ctx, req.StrategyID, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load signals: %w", err)
	}
	targets := RankTargets(signals, s.cfg.TopN)
	if len(targets) == 0 {
		return Report{}, fmt.Errorf("%w: no signals for %s between %s and %s",
			ErrInvalidRun, req.StrategyID, req.Start, req.End)
	}

	symbols := targetSymbols(targets)
	bars, err := s.bars.GetBars(ctx, symbols, start, end)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load bars: %w", err)
	}
	if s.cfg.SyntheticBars {
		s.fillSynthetic(bars, symbols, start, end)
	}

	engine := s.cfg.Engine
	if req.CostsBps != nil {
		engine.CostBps = *req.CostsBps
	}

	report, err := Simulate(Run{
		RunID:      s.newID(),
		StrategyID: req.StrategyID,
		StartNAV:   s.cfg.StartNAV,
		Targets:    targets,
		Bars:       bars,
		Config:     engine,
	})
	if err != nil {
		return report, err
	}

	report.CreatedAt = s.now().UTC()
	if s.runs != nil {
		if err := s.runs.Save(ctx, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// fillSynthetic generates random-walk bars for symbols without stored bars.
func (s *Service) fillSynthetic(bars map[string][]Bar, symbols []string, start, end time.Time) {
	seed := s.cfg.SyntheticSeed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var filled []string
	for _, symbol := range symbols {
		if len(bars[symbol]) > 0 {
			continue
		}
		bars[symbol] = SyntheticBars(symbol, start, end, rng)
		filled = append(filled, symbol)
	}

	if len(filled) > 0 {
		s.log.Warn().
			Strs("symbols", filled).
			Msg("No stored bars, using synthetic random walk")
	}
}

// Simulate runs the simulator over in-memory targets and bars without persisting.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*Report, error) {
	start := time.Now()

	engine := s.cfg.Engine
	if req.Config != nil {
		engine = *req.Config
	}
	nav := req.StartNAV
	if nav == 0 {
		nav = s.cfg.StartNAV
	}

	report, err := Simulate(Run{
		RunID:    s.newID(),
		StartNAV: nav,
		Targets:  req.Targets,
		Bars:     req.Bars,
		Config:   engine,
	})
	s.record(report, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	report.CreatedAt = s.now().UTC()
	s.logReport(report, time.Since(start))
	return &report, nil
}

// GetRun loads a stored report.
func (s *Service) GetRun(ctx context.Context, runID string) (*Report, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return s.runs.Get(ctx, runID)
}

// ListRuns lists stored reports, newest first.
func (s *Service) ListRuns(ctx context.Context, strategyID string, limit int) ([]RunSummary, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.List(ctx, strategyID, limit)
}

func (s *Service) record(report Report, err error, duration time.Duration) {
	result := metrics.BacktestOK
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingPriceData):
		result = metrics.BacktestMissingPrices
	case errors.Is(err, ErrInvalidRun):
		result = metrics.BacktestInvalid
	default:
		result = metrics.BacktestFailed
	}
	s.metrics.RecordBacktest(result, duration, report.MissingPrices, report.StalePrices)
}

func (s *Service) logReport(report Report, duration time.Duration) {
	event := s.log.Info()
	if report.MissingPrices > 0 {
		event = s.log.Warn()
	}
	event.
		Str("run_id", report.RunID).
		Str("strategy_id", report.StrategyID).
		Int("points", len(report.EquityCurve)).
		Float64("final_nav", report.FinalNAV).
		Float64("sharpe", report.Sharpe).
		Float64("max_dd", report.MaxDrawdown).
		Int("missing_prices", report.MissingPrices).
		Int("stale_prices", report.StalePrices).
		Dur("duration", duration).
		Msg("Backtest completed")
}
