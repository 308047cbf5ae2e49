package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/rs/zerolog"
)

// Retention targets reported to metrics.
const (
	TargetCovarianceCache = "covariance_cache"
	TargetBacktestRuns    = "backtest_runs"
	TargetBars            = "bars"
)

// CachePurger removes expired cache entries.
type CachePurger interface {
	DeleteAllExpired(ctx context.Context) (map[string]int64, error)
}

// RunPurger removes stored backtest runs created before a cutoff.
type RunPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// BarPurger removes stored bars dated before a cutoff.
type BarPurger interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob purges expired covariance cache entries, old backtest runs and,
// when a bar window is set, old history bars.
type RetentionJob struct {
	cache   CachePurger
	runs    RunPurger
	bars    BarPurger
	metrics *metrics.Registry
	runDays int
	barDays int
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewRetentionJob creates a retention job keeping runs for runDays.
func NewRetentionJob(cache CachePurger, runs RunPurger, registry *metrics.Registry, runDays int, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		cache:   cache,
		runs:    runs,
		metrics: registry,
		runDays: runDays,
		timeout: 5 * time.Minute,
		now:     time.Now,
		log:     log.With().Str("job", "retention").Logger(),
	}
}

// WithBars enables purging bars older than days. days <= 0 keeps every bar.
func (j *RetentionJob) WithBars(bars BarPurger, days int) *RetentionJob {
	j.bars = bars
	j.barDays = days
	return j
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "retention"
}

// Run executes the retention job
func (j *RetentionJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var firstErr error

	if j.cache != nil {
		results, err := j.cache.DeleteAllExpired(ctx)
		var total int64
		for namespace, deleted := range results {
			total += deleted
			if deleted > 0 {
				j.log.Debug().Str("namespace", namespace).Int64("deleted", deleted).Msg("Purged expired cache entries")
			}
		}
		j.metrics.RecordPurge(TargetCovarianceCache, total)
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to purge expired cache entries")
			firstErr = fmt.Errorf("purge cache: %w", err)
		}
	}

	if j.runs != nil && j.runDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.runDays)
		deleted, err := j.runs.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to purge old backtest runs")
			if firstErr == nil {
				firstErr = fmt.Errorf("purge backtest runs: %w", err)
			}
		} else {
			j.metrics.RecordPurge(TargetBacktestRuns, deleted)
			j.log.Info().
				Int64("deleted", deleted).
				Int("retention_days", j.runDays).
				Msg("Purged old backtest runs")
		}
	}

	if j.bars != nil && j.barDays > 0 {
		cutoff := j.now().AddDate(0, 0, -j.barDays)
		deleted, err := j.bars.DeleteBefore(ctx, cutoff)
		if err != nil {
			j.log.Error().Err(err).Msg("Failed to purge old bars")
			if firstErr == nil {
				firstErr = fmt.Errorf("purge bars: %w", err)
			}
		} else {
			j.metrics.RecordPurge(TargetBars, deleted)
			j.log.Info().
				Int64("deleted", deleted).
				Int("retention_days", j.barDays).
				Msg("Purged old bars")
		}
	}

	return firstErr
}
