// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/meridian/internal/cachestore"
	"github.com/aristath/meridian/internal/database"
	"github.com/aristath/meridian/internal/metrics"
	"github.com/aristath/meridian/internal/modules/backtest"
	"github.com/aristath/meridian/internal/modules/marketdata"
	"github.com/aristath/meridian/internal/modules/optimization"
	"github.com/aristath/meridian/internal/reliability"
	"github.com/aristath/meridian/internal/scheduler"
)

// Container holds all dependencies for the application.
//
// Databases: history (bars, signals), runs (backtest reports), cache (covariance).
type Container struct {
	// Databases
	HistoryDB *database.DB
	RunsDB    *database.DB
	CacheDB   *database.DB

	// Repositories
	BarRepo    *marketdata.BarRepository
	SignalRepo *marketdata.SignalRepository
	RunRepo    *backtest.RunRepository
	CacheRepo  *cachestore.Repository

	// Services
	Metrics             *metrics.Registry
	CovarianceCache     *optimization.CovarianceCache
	OptimizationService *optimization.Service
	BacktestService     *backtest.Service
	BackupService       *reliability.BackupService // nil unless a backup bucket is configured

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds job references for manual triggering
type JobInstances struct {
	Retention     *scheduler.RetentionJob
	WALCheckpoint *scheduler.CheckWALCheckpointsJob
	Backup        *scheduler.BackupJob // nil when backups are disabled
}

// Databases returns the open databases keyed by name.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"history": c.HistoryDB,
		"runs":    c.RunsDB,
		"cache":   c.CacheDB,
	}
}

// Close closes every open database.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.HistoryDB, c.RunsDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
