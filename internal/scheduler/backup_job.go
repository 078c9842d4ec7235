package scheduler

import (
	"context"
	"time"

	"github.com/aristath/rebalancer/internal/reliability"
)

// BackupRunner performs one backup cycle
type BackupRunner interface {
	Run(ctx context.Context) (*reliability.BackupResult, error)
}

// BackupJob backs up the portfolio database
type BackupJob struct {
	backups BackupRunner
	timeout time.Duration
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backups BackupRunner) *BackupJob {
	return &BackupJob{backups: backups, timeout: 30 * time.Minute}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes the backup job
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.backups.Run(ctx)
	return err
}
