// Package metrics holds the Prometheus instruments for solves, backtests and retention.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Solve outcome labels.
const (
	SolveConverged  = "converged"
	SolveExhausted  = "budget_exhausted"
	SolveInfeasible = "infeasible"
	SolveFailed     = "error"
)

// Backtest outcome labels.
const (
	BacktestOK            = "ok"
	BacktestMissingPrices = "missing_prices"
	BacktestInvalid       = "invalid"
	BacktestFailed        = "error"
)

// Registry holds all Prometheus metrics for meridian.
// A nil *Registry is valid and records nothing.
type Registry struct {
	registry *prometheus.Registry

	// Optimizer metrics
	OptimizerSolves     *prometheus.CounterVec
	OptimizerIterations prometheus.Histogram
	OptimizerDuration   *prometheus.HistogramVec
	DegenerateSolves    prometheus.Counter

	// Covariance cache metrics
	CacheLookups *prometheus.CounterVec

	// Backtest metrics
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
	MissingPrices    prometheus.Counter
	StalePrices      prometheus.Counter

	// Retention metrics
	RetentionPurged *prometheus.CounterVec

	// Backup metrics
	Backups        *prometheus.CounterVec
	BackupsRotated prometheus.Counter
}

// New creates a registry with every meridian metric plus Go runtime collectors.
func New() *Registry {
	m := &Registry{
		registry: prometheus.NewRegistry(),

		OptimizerSolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_optimizer_solves_total",
				Help: "Total optimizer solves by outcome",
			},
			[]string{"status"},
		),

		OptimizerIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_optimizer_iterations",
				Help:    "Projected-gradient iterations per solve",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		OptimizerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_optimizer_duration_seconds",
				Help:    "Duration of optimize requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"status"},
		),

		DegenerateSolves: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_optimizer_degenerate_total",
				Help: "Solves run against a singular covariance matrix",
			},
		),

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_covariance_cache_lookups_total",
				Help: "Covariance cache lookups by result",
			},
			[]string{"result"},
		),

		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_backtest_runs_total",
				Help: "Total backtest runs by result",
			},
			[]string{"result"},
		),

		BacktestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_backtest_duration_seconds",
				Help:    "Duration of backtest runs in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		MissingPrices: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_backtest_missing_prices_total",
				Help: "Price lookups that fell back to the synthetic fallback price",
			},
		),

		StalePrices: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_backtest_stale_prices_total",
				Help: "Price lookups served by the last known close",
			},
		),

		RetentionPurged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_retention_purged_total",
				Help: "Rows removed by the retention job by target",
			},
			[]string{"target"},
		),

		Backups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_backups_total",
				Help: "Database backup attempts by result",
			},
			[]string{"result"},
		),

		BackupsRotated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_backups_rotated_total",
				Help: "Backup archives deleted by rotation",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OptimizerSolves,
		m.OptimizerIterations,
		m.OptimizerDuration,
		m.DegenerateSolves,
		m.CacheLookups,
		m.BacktestRuns,
		m.BacktestDuration,
		m.MissingPrices,
		m.StalePrices,
		m.RetentionPurged,
		m.Backups,
		m.BackupsRotated,
	)

	return m
}

// Gatherer exposes the underlying registry.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSolve records one optimizer outcome.
func (m *Registry) RecordSolve(status string, iterations int, degenerate bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.OptimizerSolves.WithLabelValues(status).Inc()
	m.OptimizerDuration.WithLabelValues(status).Observe(duration.Seconds())
	if iterations > 0 {
		m.OptimizerIterations.Observe(float64(iterations))
	}
	if degenerate {
		m.DegenerateSolves.Inc()
	}
}

// RecordCacheLookup records a covariance cache hit or miss.
func (m *Registry) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordBacktest records a finished (or failed) backtest run.
func (m *Registry) RecordBacktest(result string, duration time.Duration, missing, stale int) {
	if m == nil {
		return
	}
	m.BacktestRuns.WithLabelValues(result).Inc()
	m.BacktestDuration.Observe(duration.Seconds())
	m.MissingPrices.Add(float64(missing))
	m.StalePrices.Add(float64(stale))
}

// RecordPurge records rows removed by retention.
func (m *Registry) RecordPurge(target string, rows int64) {
	if m == nil {
		return
	}
	m.RetentionPurged.WithLabelValues(target).Add(float64(rows))
}

// RecordBackup records one backup attempt and the archives rotated after it.
func (m *Registry) RecordBackup(ok bool, rotated int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Backups.WithLabelValues(result).Inc()
	m.BackupsRotated.Add(float64(rotated))
}
