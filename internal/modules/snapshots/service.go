package snapshots

import (
	"context"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

// Service computes and stores strategy snapshots
type Service struct {
	repo         *Repository
	strategyRepo *strategies.Repository
	holdingRepo  *portfolio.HoldingRepository
	clock        domain.Clock
	log          zerolog.Logger
}

// NewService creates a new snapshot service
func NewService(
	repo *Repository,
	strategyRepo *strategies.Repository,
	holdingRepo *portfolio.HoldingRepository,
	clock domain.Clock,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		strategyRepo: strategyRepo,
		holdingRepo:  holdingRepo,
		clock:        clock,
		log:          log.With().Str("service", "snapshots").Logger(),
	}
}

// CreateSnapshot values a strategy from its stored holding values and cash.
// It does not refresh prices; revalue the strategy first for a market snapshot.
func (s *Service) CreateSnapshot(ctx context.Context, strategyID int64) error {
	_, err := s.Take(ctx, strategyID)
	return err
}

// Take is CreateSnapshot returning the stored snapshot
func (s *Service) Take(ctx context.Context, strategyID int64) (*Snapshot, error) {
	strategy, err := s.strategyRepo.GetByID(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	holdings, err := s.holdingRepo.ListByStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(holdings)+1)
	for _, h := range holdings {
		values = append(values, h.CurrentValue)
	}
	values = append(values, strategy.RemainingCash)
	total := floats.Sum(values)

	snapshot := Snapshot{
		StrategyID:            strategyID,
		TotalValue:            total,
		PerformancePercentage: Performance(total, strategy.TotalFunds),
		SnapshotDate:          s.clock.Now().Unix(),
	}

	id, err := s.repo.Create(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	snapshot.ID = id

	s.log.Debug().
		Int64("strategy_id", strategyID).
		Float64("total_value", snapshot.TotalValue).
		Float64("performance_pct", snapshot.PerformancePercentage).
		Msg("Snapshot created")
	return &snapshot, nil
}

// List returns a strategy's most recent snapshots, newest first
func (s *Service) List(ctx context.Context, strategyID int64) ([]Snapshot, error) {
	if _, err := s.strategyRepo.GetByID(ctx, strategyID); err != nil {
		return nil, err
	}
	return s.repo.ListRecent(ctx, strategyID, DefaultListLimit)
}
