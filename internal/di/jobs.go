package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// RegisterJobs creates the background jobs and registers them with the
// container's scheduler. A job with an empty schedule is created but not
// scheduled, so it can still be triggered manually.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.StrategyService == nil {
		return nil, fmt.Errorf("container services not initialized")
	}

	if container.Scheduler == nil {
		container.Scheduler = scheduler.New(container.Metrics, log)
	}

	instances := &JobInstances{
		Snapshots: scheduler.NewSnapshotJob(
			container.StrategyService,
			container.SnapshotService,
			container.EventManager,
			log,
		),
		WALCheckpoint: scheduler.NewWALCheckpointJob(container.PortfolioDB, log),
		Backup:        scheduler.NewBackupJob(container.BackupService),
	}

	schedules := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedules.Snapshot, instances.Snapshots},
		{cfg.Schedules.WALCheckpoint, instances.WALCheckpoint},
		{cfg.Schedules.Backup, instances.Backup},
	}

	for _, s := range schedules {
		if s.schedule == "" {
			log.Debug().Str("job", s.job.Name()).Msg("Job has no schedule, manual trigger only")
			continue
		}
		if err := container.Scheduler.AddJob(s.schedule, s.job); err != nil {
			return nil, err
		}
	}

	return instances, nil
}
