package di

import (
	"context"
	"fmt"

	"github.com/aristath/meridian/internal/cachestore"
	"github.com/aristath/meridian/internal/config"
	"github.com/aristath/meridian/internal/metrics"
	"github.com/aristath/meridian/internal/modules/backtest"
	"github.com/aristath/meridian/internal/modules/marketdata"
	"github.com/aristath/meridian/internal/modules/optimization"
	"github.com/aristath/meridian/internal/reliability"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the data access layer
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.HistoryDB == nil || container.RunsDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	container.BarRepo = marketdata.NewBarRepository(container.HistoryDB.Conn(), log)
	container.SignalRepo = marketdata.NewSignalRepository(container.HistoryDB.Conn(), log)
	container.RunRepo = backtest.NewRunRepository(container.RunsDB.Conn(), log)
	container.CacheRepo = cachestore.NewRepository(container.CacheDB.Conn())

	return nil
}

// InitializeServices creates the optimizer and backtest services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.BarRepo == nil {
		return fmt.Errorf("repositories must be initialized first")
	}

	if container.Metrics == nil {
		container.Metrics = metrics.New()
	}

	container.CovarianceCache = optimization.NewCovarianceCache(container.CacheRepo, cfg.Retention.CovarianceTTL)

	container.OptimizationService = optimization.NewService(
		container.BarRepo,
		container.CovarianceCache,
		container.Metrics,
		OptimizationServiceConfig(cfg),
		log,
	)

	container.BacktestService = backtest.NewService(
		container.SignalRepo,
		container.BarRepo,
		container.RunRepo,
		container.Metrics,
		BacktestServiceConfig(cfg),
		log,
	)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Store(context.Background(), reliability.S3Config{
			Bucket:          cfg.Backup.Bucket,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("failed to create backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(store, container.Databases(), cfg.DataDir, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Database backups enabled")
	}

	return nil
}

// OptimizationServiceConfig maps application config onto the optimizer service.
func OptimizationServiceConfig(cfg *config.Config) optimization.ServiceConfig {
	solver := optimization.DefaultSolverConfig()
	solver.RiskAversion = cfg.Optimizer.RiskAversion
	solver.StepSize = cfg.Optimizer.StepSize
	solver.MaxIterations = cfg.Optimizer.MaxIterations
	solver.Tolerance = cfg.Optimizer.Tolerance
	solver.SeedFromClosedForm = cfg.Optimizer.SeedFromClosedForm

	return optimization.ServiceConfig{
		Solver:            solver,
		Shrinkage:         cfg.Optimizer.Shrinkage,
		DefaultWindowDays: cfg.Optimizer.WindowDays,
	}
}

// BacktestServiceConfig maps application config onto the backtest service.
func BacktestServiceConfig(cfg *config.Config) backtest.ServiceConfig {
	return backtest.ServiceConfig{
		StartNAV: cfg.Backtest.StartNAV,
		Engine: backtest.EngineConfig{
			RebalanceDays:   cfg.Backtest.RebalanceDays,
			CostBps:         cfg.Backtest.CostBps,
			FallbackPrice:   cfg.Backtest.FallbackPrice,
			FallbackPolicy:  cfg.Backtest.FallbackPolicy,
			MaxMissingRatio: cfg.Backtest.MaxMissingRatio,
		},
		TopN:          cfg.Backtest.TopN,
		SyntheticBars: cfg.Backtest.SyntheticBars,
		SyntheticSeed: cfg.Backtest.SyntheticSeed,
	}
}
