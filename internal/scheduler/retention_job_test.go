package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCachePurger struct {
	results map[string]int64
	err     error
	calls   int
}

func (s *stubCachePurger) DeleteAllExpired(context.Context) (map[string]int64, error) {
	s.calls++
	return s.results, s.err
}

type stubRunPurger struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (s *stubRunPurger) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

type stubBarPurger struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (s *stubBarPurger) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.calls++
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestRetentionJob_Run(t *testing.T) {
	cache := &stubCachePurger{results: map[string]int64{"covariance": 3}}
	runs := &stubRunPurger{deleted: 2}
	job := NewRetentionJob(cache, runs, metrics.New(), 30, zerolog.Nop())
	now := time.Date(2024, 6, 30, 3, 30, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run())
	assert.Equal(t, "retention", job.Name())
	assert.Equal(t, 1, cache.calls)
	assert.Equal(t, now.AddDate(0, 0, -30), runs.cutoff)
}

func TestRetentionJob_CacheErrorStillPurgesRuns(t *testing.T) {
	cache := &stubCachePurger{err: errors.New("database is locked")}
	runs := &stubRunPurger{}
	job := NewRetentionJob(cache, runs, nil, 30, zerolog.Nop())

	err := job.Run()
	assert.ErrorContains(t, err, "purge cache")
	assert.False(t, runs.cutoff.IsZero())
}

func TestRetentionJob_NilTargets(t *testing.T) {
	job := NewRetentionJob(nil, nil, nil, 30, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestRetentionJob_PurgesBars(t *testing.T) {
	bars := &stubBarPurger{deleted: 12}
	job := NewRetentionJob(nil, &stubRunPurger{}, nil, 30, zerolog.Nop()).WithBars(bars, 365)
	now := time.Date(2024, 6, 30, 3, 30, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run())
	assert.Equal(t, 1, bars.calls)
	assert.Equal(t, now.AddDate(0, 0, -365), bars.cutoff)
}

func TestRetentionJob_ZeroBarWindowKeepsBars(t *testing.T) {
	bars := &stubBarPurger{}
	job := NewRetentionJob(nil, nil, nil, 30, zerolog.Nop()).WithBars(bars, 0)

	require.NoError(t, job.Run())
	assert.Equal(t, 0, bars.calls)
}

func TestRetentionJob_BarErrorReported(t *testing.T) {
	bars := &stubBarPurger{err: errors.New("disk I/O error")}
	job := NewRetentionJob(nil, nil, nil, 30, zerolog.Nop()).WithBars(bars, 30)

	assert.ErrorContains(t, job.Run(), "purge bars")
}
