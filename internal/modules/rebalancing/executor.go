package rebalancing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

// ErrNotExecuted and ErrAlreadyUndone are the undo rejections.
// Both wrap domain.ErrInvalidState.
var (
	ErrNotExecuted   = fmt.Errorf("%w: cannot undo a rebalancing that hasn't been executed", domain.ErrInvalidState)
	ErrAlreadyUndone = fmt.Errorf("%w: this rebalancing has already been undone", domain.ErrInvalidState)
)

// ExecuteRebalancing applies the latest pending record of a strategy.
// Returns nil result when there is nothing pending. Holdings, cash and the
// record flag commit together or not at all.
func (s *Service) ExecuteRebalancing(ctx context.Context, strategyID int64) (*ApplyResult, error) {
	unlock := s.locks.Lock(strategyID)
	defer unlock()

	started := time.Now()
	outcome := metrics.OutcomeError
	defer func() { s.metrics.ObserveOperation("execute", outcome, started) }()

	var result *ApplyResult
	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		strategyRepo := s.strategyRepo.WithTx(tx)
		records := s.records.WithTx(tx)

		strategy, err := strategyRepo.GetByID(ctx, strategyID)
		if err != nil {
			return err
		}
		rec, err := records.LatestPending(ctx, strategyID)
		if err != nil || rec == nil {
			return err
		}

		now := s.clock.Now().Unix()
		delta, err := s.applyActions(ctx, tx, strategy, rec.Actions, now, false)
		if err != nil {
			return err
		}

		strategy.RemainingCash += delta
		if err := strategyRepo.UpdateRemainingCash(ctx, strategyID, strategy.RemainingCash); err != nil {
			return err
		}
		if err := records.MarkExecuted(ctx, rec.ID, now); err != nil {
			return err
		}

		result = &ApplyResult{
			RecordID:      rec.ID,
			RecordUUID:    rec.UUID,
			StrategyID:    strategyID,
			Actions:       len(rec.Actions),
			CashDelta:     delta,
			RemainingCash: strategy.RemainingCash,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to execute rebalancing for strategy %d: %w", strategyID, err)
	}

	if result == nil {
		outcome = metrics.OutcomeNoop
		s.log.Debug().Int64("strategy_id", strategyID).Msg("No pending rebalancing to execute")
		return nil, nil
	}

	outcome = metrics.OutcomeApplied
	s.log.Info().
		Int64("strategy_id", strategyID).
		Int64("record_id", result.RecordID).
		Int("actions", result.Actions).
		Float64("cash_delta", result.CashDelta).
		Float64("remaining_cash", result.RemainingCash).
		Msg("Rebalancing executed")
	s.emitApplied(events.RebalanceExecuted, result)
	return result, nil
}

// UndoRebalancing reverses an executed record with a compensating
// transaction. Holdings changed by anything else since execution are not
// reconciled; the recorded deltas are applied as they are.
func (s *Service) UndoRebalancing(ctx context.Context, recordID int64) (*ApplyResult, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(rec.StrategyID)
	defer unlock()

	started := time.Now()
	outcome := metrics.OutcomeError
	defer func() { s.metrics.ObserveOperation("undo", outcome, started) }()

	var result *ApplyResult
	err = database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		strategyRepo := s.strategyRepo.WithTx(tx)
		records := s.records.WithTx(tx)

		// Re-read under the lock; the flags may have moved since the lookup
		rec, err := records.GetByID(ctx, recordID)
		if err != nil {
			return err
		}
		if !rec.Executed {
			return ErrNotExecuted
		}
		if rec.Undone {
			return ErrAlreadyUndone
		}

		strategy, err := strategyRepo.GetByID(ctx, rec.StrategyID)
		if err != nil {
			return err
		}

		reversed := make([]Action, len(rec.Actions))
		for i, a := range rec.Actions {
			a.Kind = a.Kind.Inverse()
			reversed[len(rec.Actions)-1-i] = a
		}

		now := s.clock.Now().Unix()
		delta, err := s.applyActions(ctx, tx, strategy, reversed, now, true)
		if err != nil {
			return err
		}

		strategy.RemainingCash += delta
		if err := strategyRepo.UpdateRemainingCash(ctx, strategy.ID, strategy.RemainingCash); err != nil {
			return err
		}
		if err := records.MarkUndone(ctx, rec.ID, now); err != nil {
			return err
		}

		result = &ApplyResult{
			RecordID:      rec.ID,
			RecordUUID:    rec.UUID,
			StrategyID:    strategy.ID,
			Actions:       len(rec.Actions),
			CashDelta:     delta,
			RemainingCash: strategy.RemainingCash,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidState) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to undo rebalancing %d: %w", recordID, err)
	}

	outcome = metrics.OutcomeApplied
	s.log.Info().
		Int64("strategy_id", result.StrategyID).
		Int64("record_id", result.RecordID).
		Int("actions", result.Actions).
		Float64("cash_delta", result.CashDelta).
		Msg("Rebalancing undone")
	s.emitApplied(events.RebalanceUndone, result)
	return result, nil
}

// RecordIDByUUID resolves an external record reference
func (s *Service) RecordIDByUUID(ctx context.Context, ref string) (int64, error) {
	rec, err := s.records.GetByUUID(ctx, ref)
	if err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// applyActions mutates the representative holding row of each security and
// returns the net cash change.
//
// A buy raises the row's quantity and blends the cost basis, creating the
// row when the strategy holds none. A sell lowers the row's quantity and
// deletes it at zero. A sell with no row to draw from is skipped on execute;
// when reversing a buy the cash is still credited.
func (s *Service) applyActions(ctx context.Context, tx *sql.Tx, strategy *strategies.Strategy, actions []Action, now int64, reversing bool) (float64, error) {
	repo := s.holdingRepo.WithTx(tx)

	holdings, err := repo.ListByStrategy(ctx, strategy.ID)
	if err != nil {
		return 0, err
	}
	index := portfolio.NewHoldingIndex(holdings)

	reps := make(map[int64]portfolio.Holding)
	for _, id := range index.SecurityIDs() {
		rep, _ := index.Representative(id)
		reps[id] = rep
	}

	var delta float64
	for _, a := range actions {
		rep, held := reps[a.SecurityID]

		switch a.Kind {
		case ActionBuy:
			if held {
				newQty := rep.Quantity + a.Quantity
				rep.AveragePrice = (float64(rep.Quantity)*rep.AveragePrice + a.Value()) / float64(newQty)
				rep.Quantity = newQty
				rep.CurrentValue = float64(newQty) * a.Price
				if err := repo.UpdatePosition(ctx, rep.ID, rep.Quantity, rep.AveragePrice, rep.CurrentValue); err != nil {
					return 0, err
				}
			} else {
				rep = portfolio.Holding{
					UserID:       strategy.UserID,
					StrategyID:   &strategy.ID,
					PortfolioID:  portfolioFor(strategy, a.SecurityID),
					SecurityID:   a.SecurityID,
					Quantity:     a.Quantity,
					AveragePrice: a.Price,
					CurrentValue: a.Value(),
					PurchaseDate: &now,
				}
				id, err := repo.Create(ctx, rep)
				if err != nil {
					return 0, err
				}
				rep.ID = id
			}
			reps[a.SecurityID] = rep
			delta -= a.Value()

		case ActionSell:
			if !held {
				s.log.Warn().
					Int64("strategy_id", strategy.ID).
					Int64("security_id", a.SecurityID).
					Bool("reversing", reversing).
					Msg("No holding to sell from")
				if reversing {
					delta += a.Value()
				}
				continue
			}
			rep.Quantity -= a.Quantity
			if rep.Quantity <= 0 {
				if err := repo.Delete(ctx, rep.ID); err != nil {
					return 0, err
				}
				delete(reps, a.SecurityID)
			} else {
				rep.CurrentValue = float64(rep.Quantity) * a.Price
				if err := repo.UpdatePosition(ctx, rep.ID, rep.Quantity, rep.AveragePrice, rep.CurrentValue); err != nil {
					return 0, err
				}
				reps[a.SecurityID] = rep
			}
			delta += a.Value()

		default:
			return 0, fmt.Errorf("unknown action %q for security %d", a.Kind, a.SecurityID)
		}
	}
	return delta, nil
}

// portfolioFor returns the first portfolio allocating the security
func portfolioFor(strategy *strategies.Strategy, securityID int64) *int64 {
	for _, alloc := range strategy.Allocations {
		if _, ok := alloc.StockAllocations[securityID]; ok {
			id := alloc.PortfolioID
			return &id
		}
	}
	return nil
}

func (s *Service) emitApplied(eventType events.EventType, r *ApplyResult) {
	s.emitter.EmitTyped(eventType, "rebalancing", &events.RebalanceAppliedData{
		Type:          eventType,
		StrategyID:    r.StrategyID,
		RecordID:      r.RecordUUID,
		Actions:       r.Actions,
		CashDelta:     r.CashDelta,
		RemainingCash: r.RemainingCash,
	})
}
