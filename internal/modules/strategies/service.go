package strategies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
)

// ErrInvalidRequest is returned for malformed strategy fields
var ErrInvalidRequest = errors.New("invalid strategy request")

// SeedResult is what seeding a new strategy left behind
type SeedResult struct {
	RemainingCash float64

	// MissingPriceSecurityIDs lists allocated securities skipped for lack of a price
	MissingPriceSecurityIDs []int64
}

// HoldingsSeeder creates the starting positions of a new strategy inside tx.
// Defined here to avoid import cycle with rebalancing package
type HoldingsSeeder interface {
	SeedInitialHoldings(ctx context.Context, tx *sql.Tx, s *Strategy) (*SeedResult, error)
}

// RebalanceTrigger re-runs the action generator for a strategy.
// Defined here to avoid import cycle with rebalancing package
type RebalanceTrigger interface {
	Recalculate(ctx context.Context, strategyID int64) error
}

// Snapshotter records a performance snapshot of a strategy.
// Defined here to avoid import cycle with snapshots package
type Snapshotter interface {
	CreateSnapshot(ctx context.Context, strategyID int64) error
}

// StrategyLocker serializes writers of one strategy. The returned func
// releases the lock.
type StrategyLocker interface {
	LockStrategy(strategyID int64) func()
}

// Service handles the strategy lifecycle
type Service struct {
	db          *sql.DB
	repo        *Repository
	holdingRepo *portfolio.HoldingRepository
	prices      domain.PriceProvider
	seeder      HoldingsSeeder
	trigger     RebalanceTrigger
	snapshotter Snapshotter
	locker      StrategyLocker
	clock       domain.Clock
	emitter     events.Emitter
	log         zerolog.Logger
}

// NewService creates a new strategy service.
// seeder, trigger and snapshotter are wired later with SetCollaborators.
func NewService(
	db *sql.DB,
	repo *Repository,
	holdingRepo *portfolio.HoldingRepository,
	prices domain.PriceProvider,
	clock domain.Clock,
	emitter events.Emitter,
	log zerolog.Logger,
) *Service {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Service{
		db:          db,
		repo:        repo,
		holdingRepo: holdingRepo,
		prices:      prices,
		clock:       clock,
		emitter:     emitter,
		log:         log.With().Str("service", "strategies").Logger(),
	}
}

// SetLocker shares the rebalancing engine's per-strategy lock with updates
func (s *Service) SetLocker(locker StrategyLocker) {
	s.locker = locker
}

// SetCollaborators wires the services that depend on this one
func (s *Service) SetCollaborators(seeder HoldingsSeeder, trigger RebalanceTrigger, snapshotter Snapshotter) {
	s.seeder = seeder
	s.trigger = trigger
	s.snapshotter = snapshotter
}

// Create validates and persists a strategy, seeds its initial holdings and
// records the first snapshot
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Strategy, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if req.TotalFunds < 0 {
		return nil, fmt.Errorf("%w: total_funds must not be negative", ErrInvalidRequest)
	}
	if err := req.Allocations.Validate(); err != nil {
		return nil, err
	}

	strategy := &Strategy{
		UserID:        req.UserID,
		Name:          name,
		TotalFunds:    req.TotalFunds,
		RemainingCash: req.TotalFunds,
		Allocations:   req.Allocations.Clone(),
		CreatedAt:     s.clock.Now().Unix(),
	}

	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)

		id, err := repo.Create(ctx, strategy)
		if err != nil {
			return err
		}
		strategy.ID = id

		if s.seeder == nil {
			return nil
		}
		seeded, err := s.seeder.SeedInitialHoldings(ctx, tx, strategy)
		if err != nil {
			return err
		}
		strategy.RemainingCash = seeded.RemainingCash
		strategy.MissingPriceSecurityIDs = seeded.MissingPriceSecurityIDs
		return repo.UpdateRemainingCash(ctx, id, seeded.RemainingCash)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}

	s.log.Info().
		Int64("strategy_id", strategy.ID).
		Int64("user_id", strategy.UserID).
		Float64("total_funds", strategy.TotalFunds).
		Float64("remaining_cash", strategy.RemainingCash).
		Msg("Strategy created")
	s.emitter.EmitTyped(events.StrategyCreated, "strategies", &events.StrategyChangedData{
		Type: events.StrategyCreated, StrategyID: strategy.ID, UserID: strategy.UserID,
	})

	if s.snapshotter != nil {
		if err := s.snapshotter.CreateSnapshot(ctx, strategy.ID); err != nil {
			s.log.Warn().Err(err).Int64("strategy_id", strategy.ID).Msg("Failed to create initial snapshot")
		}
	}

	return strategy, nil
}

// Get returns a strategy by id
func (s *Service) Get(ctx context.Context, id int64) (*Strategy, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByUser returns a user's strategies
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Strategy, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListAll returns every strategy
func (s *Service) ListAll(ctx context.Context) ([]Strategy, error) {
	return s.repo.ListAll(ctx)
}

// Update applies the non-nil fields of req. A new allocation list is
// validated strictly and re-runs the action generator.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Strategy, error) {
	strategy, err := s.applyUpdate(ctx, id, req)
	if err != nil {
		return nil, err
	}
	allocationChanged := req.Allocations != nil

	s.log.Info().Int64("strategy_id", id).Bool("allocation_changed", allocationChanged).Msg("Strategy updated")
	s.emitter.EmitTyped(events.StrategyUpdated, "strategies", &events.StrategyChangedData{
		Type: events.StrategyUpdated, StrategyID: id, UserID: strategy.UserID,
	})

	// The trigger takes the strategy lock itself
	if allocationChanged && s.trigger != nil {
		if err := s.trigger.Recalculate(ctx, id); err != nil {
			return nil, fmt.Errorf("strategy updated but rebalancing failed: %w", err)
		}
	}

	return strategy, nil
}

// applyUpdate reads and writes under the strategy lock and only writes the
// columns req touches, so a portfolio change propagated meanwhile survives.
func (s *Service) applyUpdate(ctx context.Context, id int64, req UpdateRequest) (*Strategy, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidRequest)
	}
	if req.TotalFunds != nil && *req.TotalFunds < 0 {
		return nil, fmt.Errorf("%w: total_funds must not be negative", ErrInvalidRequest)
	}
	if req.Allocations != nil {
		if err := req.Allocations.Validate(); err != nil {
			return nil, err
		}
	}

	if s.locker != nil {
		unlock := s.locker.LockStrategy(id)
		defer unlock()
	}

	strategy, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		strategy.Name = strings.TrimSpace(*req.Name)
	}
	if req.TotalFunds != nil {
		strategy.TotalFunds = *req.TotalFunds
	}
	if req.Allocations != nil {
		strategy.Allocations = req.Allocations.Clone()
	}

	err = database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if req.Name != nil || req.TotalFunds != nil {
			if err := repo.UpdateDetails(ctx, strategy); err != nil {
				return err
			}
		}
		if req.Allocations != nil {
			return repo.UpdateAllocations(ctx, id, strategy.Allocations)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update strategy %d: %w", id, err)
	}
	return strategy, nil
}

// Delete removes a strategy together with its holdings, records and snapshots
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("strategy_id", id).Msg("Strategy deleted")
	s.emitter.EmitTyped(events.StrategyDeleted, "strategies", &events.StrategyChangedData{
		Type: events.StrategyDeleted, StrategyID: id,
	})
	return nil
}

// Revalue refreshes every holding's current value from the latest prices.
// Holdings without a price are left untouched. Returns the number of rows updated.
func (s *Service) Revalue(ctx context.Context, id int64) (int, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return 0, err
	}

	holdings, err := s.holdingRepo.ListByStrategy(ctx, id)
	if err != nil {
		return 0, err
	}
	if len(holdings) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.SecurityID)
	}
	quotes, err := s.prices.GetQuotes(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to get quotes: %w", err)
	}

	updated := 0
	err = database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.holdingRepo.WithTx(tx)
		for _, h := range holdings {
			quote, ok := quotes[h.SecurityID]
			if !ok {
				continue
			}
			if err := repo.UpdateCurrentValue(ctx, h.ID, float64(h.Quantity)*quote.Price); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to revalue strategy %d: %w", id, err)
	}

	s.log.Debug().Int64("strategy_id", id).Int("updated", updated).Int("holdings", len(holdings)).Msg("Strategy revalued")
	return updated, nil
}
