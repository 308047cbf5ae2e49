package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/meridian/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackupRunner struct {
	uploadErr     error
	rotateErr     error
	rotated       int
	uploads       int
	rotations     int
	retentionDays int
}

func (s *stubBackupRunner) CreateAndUploadBackup(context.Context) (string, error) {
	s.uploads++
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	return "meridian-backup-2024-03-01-020000.tar.gz", nil
}

func (s *stubBackupRunner) RotateOldBackups(_ context.Context, retentionDays int) (int, error) {
	s.rotations++
	s.retentionDays = retentionDays
	return s.rotated, s.rotateErr
}

func TestBackupJob_Run(t *testing.T) {
	runner := &stubBackupRunner{rotated: 2}
	job := NewBackupJob(runner, metrics.New(), 30, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, "backup", job.Name())
	assert.Equal(t, 1, runner.uploads)
	assert.Equal(t, 1, runner.rotations)
	assert.Equal(t, 30, runner.retentionDays)
}

func TestBackupJob_UploadFailureSkipsRotation(t *testing.T) {
	runner := &stubBackupRunner{uploadErr: errors.New("bucket unreachable")}
	job := NewBackupJob(runner, nil, 30, zerolog.Nop())

	err := job.Run()
	assert.ErrorContains(t, err, "bucket unreachable")
	assert.Equal(t, 0, runner.rotations)
}

func TestBackupJob_RotationFailure(t *testing.T) {
	runner := &stubBackupRunner{rotateErr: errors.New("list failed")}
	job := NewBackupJob(runner, nil, 7, zerolog.Nop())

	err := job.Run()
	assert.ErrorContains(t, err, "rotate backups")
	assert.Equal(t, 1, runner.uploads)
}
