package rebalancing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/allocation"
)

// propagationConcurrency bounds how many strategies are rebalanced at once
const propagationConcurrency = 4

// MembershipChange is a portfolio edit reported by the portfolio editor
type MembershipChange struct {
	OldSecurityIDs []int64 `json:"old_security_ids"`
	NewSecurityIDs []int64 `json:"new_security_ids"`
}

// PropagatedStrategy is the outcome for one affected strategy
type PropagatedStrategy struct {
	StrategyID int64  `json:"strategy_id"`
	RecordID   string `json:"record_id,omitempty"`
	Actions    int    `json:"actions"`
}

// PropagationResult summarizes a portfolio membership change
type PropagationResult struct {
	PortfolioID int64                `json:"portfolio_id"`
	Removed     []int64              `json:"removed"`
	Added       []int64              `json:"added"`
	Strategies  []PropagatedStrategy `json:"strategies"`
}

// HandlePortfolioChange rewrites the stock allocations of every strategy
// that allocates to the portfolio and re-runs the action generator for each.
//
// Strategies are processed in parallel. A failure in one does not stop the
// others; the first error is returned after all have finished.
func (s *Service) HandlePortfolioChange(ctx context.Context, portfolioID int64, change MembershipChange) (*PropagationResult, error) {
	started := time.Now()
	outcome := metrics.OutcomeError
	defer func() { s.metrics.ObserveOperation("propagate", outcome, started) }()

	removed, added := allocation.MembershipDiff(change.OldSecurityIDs, change.NewSecurityIDs)
	result := &PropagationResult{
		PortfolioID: portfolioID,
		Removed:     removed,
		Added:       added,
		Strategies:  []PropagatedStrategy{},
	}
	if len(removed) == 0 && len(added) == 0 {
		outcome = metrics.OutcomeNoop
		return result, nil
	}

	affected, err := s.strategyRepo.ListReferencingPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(propagationConcurrency)

	for _, strategy := range affected {
		strategyID := strategy.ID
		g.Go(func() error {
			calc, err := s.propagateOne(ctx, strategyID, portfolioID, removed, added)
			if err != nil {
				s.log.Error().Err(err).
					Int64("strategy_id", strategyID).
					Int64("portfolio_id", portfolioID).
					Msg("Failed to propagate portfolio change")
				return fmt.Errorf("strategy %d: %w", strategyID, err)
			}

			mu.Lock()
			result.Strategies = append(result.Strategies, PropagatedStrategy{
				StrategyID: strategyID,
				RecordID:   calc.RecordID,
				Actions:    len(calc.Actions),
			})
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	sort.Slice(result.Strategies, func(i, j int) bool {
		return result.Strategies[i].StrategyID < result.Strategies[j].StrategyID
	})

	ids := make([]int64, 0, len(result.Strategies))
	for _, p := range result.Strategies {
		ids = append(ids, p.StrategyID)
	}
	s.emitter.EmitTyped(events.AllocationsPropagated, "rebalancing", &events.AllocationsPropagatedData{
		PortfolioID: portfolioID,
		StrategyIDs: ids,
		Removed:     removed,
		Added:       added,
	})

	if err != nil {
		return result, fmt.Errorf("failed to propagate change of portfolio %d: %w", portfolioID, err)
	}

	outcome = metrics.OutcomeApplied
	s.log.Info().
		Int64("portfolio_id", portfolioID).
		Int("strategies", len(result.Strategies)).
		Int("removed", len(removed)).
		Int("added", len(added)).
		Msg("Portfolio change propagated")
	return result, nil
}

func (s *Service) propagateOne(ctx context.Context, strategyID, portfolioID int64, removed, added []int64) (*Calculation, error) {
	unlock := s.locks.Lock(strategyID)
	defer unlock()

	// Reload under the lock so a concurrent update is not overwritten
	strategy, err := s.strategyRepo.GetByID(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	idx := strategy.Allocations.Find(portfolioID)
	if idx < 0 {
		return &Calculation{StrategyID: strategyID}, nil
	}

	allocs := strategy.Allocations.Clone()
	allocs[idx].ApplyMembershipChange(removed, added)
	if err := s.strategyRepo.UpdateAllocations(ctx, strategyID, allocs); err != nil {
		return nil, err
	}

	return s.calculate(ctx, strategyID)
}
