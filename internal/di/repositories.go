package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/rebalancing"
	"github.com/aristath/rebalancer/internal/modules/snapshots"
	"github.com/aristath/rebalancer/internal/modules/strategies"
	"github.com/aristath/rebalancer/internal/modules/universe"
)

// InitializeRepositories creates all repositories on the portfolio database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.PortfolioDB == nil {
		return fmt.Errorf("container database not initialized")
	}

	db := container.PortfolioDB.Conn()

	container.SecurityRepo = universe.NewSecurityRepository(db, log)
	container.HoldingRepo = portfolio.NewHoldingRepository(db, log)
	container.StrategyRepo = strategies.NewRepository(db, log)
	container.SnapshotRepo = snapshots.NewRepository(db, log)
	container.RecordRepo = rebalancing.NewRecordRepository(db, log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
