// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all service instances and
// is passed to the server for access to services.
package di

import (
	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/snapshots"
	"github.com/aristath/rebalancer/internal/modules/strategies"
	"github.com/aristath/rebalancer/internal/modules/universe"
	"github.com/aristath/rebalancer/internal/reliability"
	"github.com/aristath/rebalancer/internal/scheduler"
)

// Container holds all dependencies for the application
type Container struct {
	// Database
	PortfolioDB *database.DB

	// Repositories
	SecurityRepo *universe.SecurityRepository
	HoldingRepo  *portfolio.HoldingRepository
	StrategyRepo *strategies.Repository
	SnapshotRepo *snapshots.Repository
	RecordRepo   *rebalancing.RecordRepository

	// Services
	StrategyService    *strategies.Service
	SnapshotService    *snapshots.Service
	RebalancingService *rebalancing.Service
	BackupService      *reliability.BackupService

	// Infrastructure
	Clock        domain.Clock
	EventBus     *events.Bus
	EventManager *events.Manager
	Metrics      *metrics.Metrics
	Scheduler    *scheduler.Scheduler
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	Snapshots     scheduler.Job
	WALCheckpoint scheduler.Job
	Backup        scheduler.Job
}

// Close releases the database connection
func (c *Container) Close() error {
	if c == nil || c.PortfolioDB == nil {
		return nil
	}
	return c.PortfolioDB.Close()
}
