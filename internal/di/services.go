package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/config"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/snapshots"
	"github.com/aristath/rebalancer/internal/modules/strategies"
	"github.com/aristath/rebalancer/internal/reliability"
)

// InitializeServices creates the event system, metrics and all services.
// Repositories must be initialized first.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.StrategyRepo == nil {
		return fmt.Errorf("container repositories not initialized")
	}

	if container.Clock == nil {
		container.Clock = domain.SystemClock{}
	}
	if container.Metrics == nil {
		container.Metrics = metrics.New("rebalancer")
	}

	// ==========================================
	// Event system
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	db := container.PortfolioDB.Conn()

	// Securities act as the price feed for every engine operation
	prices := container.SecurityRepo

	// ==========================================
	// Domain services
	// ==========================================
	container.SnapshotService = snapshots.NewService(
		container.SnapshotRepo,
		container.StrategyRepo,
		container.HoldingRepo,
		container.Clock,
		log,
	)

	container.RebalancingService = rebalancing.NewService(
		db,
		container.RecordRepo,
		container.StrategyRepo,
		container.HoldingRepo,
		prices,
		cfg.Thresholds,
		container.Clock,
		container.EventManager,
		container.Metrics,
		log,
	)

	container.StrategyService = strategies.NewService(
		db,
		container.StrategyRepo,
		container.HoldingRepo,
		prices,
		container.Clock,
		container.EventManager,
		log,
	)
	// Break the strategies <-> rebalancing/snapshots cycle
	container.StrategyService.SetCollaborators(
		container.RebalancingService,
		container.RebalancingService,
		container.SnapshotService,
	)
	container.StrategyService.SetLocker(container.RebalancingService)

	// ==========================================
	// Backups
	// ==========================================
	var store reliability.ObjectStore
	if cfg.Backup.UploadEnabled() {
		s3Store, err := reliability.NewS3Store(context.Background(), reliability.S3Config{
			Bucket:          cfg.Backup.S3Bucket,
			Endpoint:        cfg.Backup.S3Endpoint,
			Region:          cfg.Backup.S3Region,
			AccessKeyID:     cfg.Backup.S3AccessKeyID,
			SecretAccessKey: cfg.Backup.S3SecretAccessKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		store = s3Store
		log.Info().Str("bucket", cfg.Backup.S3Bucket).Msg("Off-site backups enabled")
	} else {
		log.Info().Msg("Off-site backups disabled, keeping local archives only")
	}

	container.BackupService = reliability.NewBackupService(
		container.PortfolioDB,
		cfg.BackupDir(),
		store,
		cfg.Backup.RetentionDays,
		container.Clock,
		container.EventManager,
		log,
	)

	log.Debug().Msg("Services initialized")
	return nil
}
