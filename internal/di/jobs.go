package di

import (
	"fmt"

	"github.com/aristath/meridian/internal/config"
	"github.com/aristath/meridian/internal/scheduler"
	"github.com/rs/zerolog"
)

// walCheckSchedule runs the WAL check every hour on the hour.
const walCheckSchedule = "0 0 * * * *"

// RegisterJobs creates the maintenance jobs and registers them with the scheduler
// Returns JobInstances for manual triggering
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{}
	container.Scheduler = scheduler.New(log)

	// Retention: expired covariance entries, old backtest runs and old bars
	instances.Retention = scheduler.NewRetentionJob(
		container.CacheRepo,
		container.RunRepo,
		container.Metrics,
		cfg.Retention.RunDays,
		log,
	).WithBars(container.BarRepo, cfg.Retention.BarDays)
	if err := container.Scheduler.AddJob(cfg.Retention.Schedule, instances.Retention); err != nil {
		return nil, fmt.Errorf("failed to register retention job: %w", err)
	}

	// WAL checkpoint monitoring
	instances.WALCheckpoint = scheduler.NewCheckWALCheckpointsJob(container.Databases())
	instances.WALCheckpoint.SetLogger(log)
	if err := container.Scheduler.AddJob(walCheckSchedule, instances.WALCheckpoint); err != nil {
		return nil, fmt.Errorf("failed to register WAL checkpoint job: %w", err)
	}

	// Backups to object storage
	if container.BackupService != nil {
		instances.Backup = scheduler.NewBackupJob(container.BackupService, container.Metrics, cfg.Backup.RetentionDays, log)
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, instances.Backup); err != nil {
			return nil, fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	log.Info().Int("jobs", container.Scheduler.Entries()).Msg("Jobs registered")

	return instances, nil
}
