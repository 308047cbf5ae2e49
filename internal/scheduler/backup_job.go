package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/rs/zerolog"
)

// BackupRunner creates and rotates database backups.
type BackupRunner interface {
	CreateAndUploadBackup(ctx context.Context) (string, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a database backup and then rotates old archives.
type BackupJob struct {
	backups       BackupRunner
	metrics       *metrics.Registry
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a backup job keeping archives for retentionDays (0 keeps all).
func NewBackupJob(backups BackupRunner, registry *metrics.Registry, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		metrics:       registry,
		retentionDays: retentionDays,
		timeout:       30 * time.Minute,
		log:           log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job. Rotation only runs after a successful upload.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	archive, err := j.backups.CreateAndUploadBackup(ctx)
	if err != nil {
		j.metrics.RecordBackup(false, 0)
		j.log.Error().Err(err).Msg("Backup failed")
		return fmt.Errorf("backup: %w", err)
	}

	rotated, err := j.backups.RotateOldBackups(ctx, j.retentionDays)
	j.metrics.RecordBackup(true, rotated)
	if err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
		return fmt.Errorf("rotate backups: %w", err)
	}

	j.log.Info().
		Str("archive", archive).
		Int("rotated", rotated).
		Msg("Backup job completed")
	return nil
}
