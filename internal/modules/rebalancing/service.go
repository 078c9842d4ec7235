package rebalancing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/metrics"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

// Service orchestrates rebalancing operations.
// calculate, execute and undo are serialized per strategy.
type Service struct {
	db           *sql.DB
	records      *RecordRepository
	strategyRepo *strategies.Repository
	holdingRepo  *portfolio.HoldingRepository
	prices       domain.PriceProvider
	thresholds   Thresholds
	clock        domain.Clock
	emitter      events.Emitter
	metrics      *metrics.Metrics
	locks        *strategyLocks
	log          zerolog.Logger
}

// NewService creates a new rebalancing service. emitter and m may be nil.
func NewService(
	db *sql.DB,
	records *RecordRepository,
	strategyRepo *strategies.Repository,
	holdingRepo *portfolio.HoldingRepository,
	prices domain.PriceProvider,
	thresholds Thresholds,
	clock domain.Clock,
	emitter events.Emitter,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Service {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &Service{
		db:           db,
		records:      records,
		strategyRepo: strategyRepo,
		holdingRepo:  holdingRepo,
		prices:       prices,
		thresholds:   thresholds,
		clock:        clock,
		emitter:      emitter,
		metrics:      m,
		locks:        newStrategyLocks(),
		log:          log.With().Str("service", "rebalancing").Logger(),
	}
}

// Thresholds returns the active thresholds
func (s *Service) Thresholds() Thresholds {
	return s.thresholds
}

// CalculateRebalancing computes the actions that move a strategy toward its
// targets and persists them as a pending record when there are any
func (s *Service) CalculateRebalancing(ctx context.Context, strategyID int64) (*Calculation, error) {
	unlock := s.locks.Lock(strategyID)
	defer unlock()

	return s.calculate(ctx, strategyID)
}

// Recalculate re-runs the generator, discarding the result.
// Satisfies strategies.RebalanceTrigger.
func (s *Service) Recalculate(ctx context.Context, strategyID int64) error {
	_, err := s.CalculateRebalancing(ctx, strategyID)
	return err
}

// calculate expects the strategy lock to be held
func (s *Service) calculate(ctx context.Context, strategyID int64) (calc *Calculation, err error) {
	started := time.Now()
	outcome := metrics.OutcomeError
	defer func() { s.metrics.ObserveOperation("calculate", outcome, started) }()

	strategy, err := s.strategyRepo.GetByID(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.holdingRepo.ListByStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	index := portfolio.NewHoldingIndex(holdings)

	quotes, err := s.prices.GetQuotes(ctx, unionIDs(strategy.Allocations.SecurityIDs(), index.SecurityIDs()))
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	plan, err := GeneratePlan(PlanInput{
		Allocations:   strategy.Allocations,
		Holdings:      index,
		Prices:        priceMap(quotes),
		RemainingCash: strategy.RemainingCash,
	}, s.thresholds)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate rebalancing for strategy %d: %w", strategyID, err)
	}

	if len(plan.MissingPrices) > 0 {
		s.log.Warn().
			Int64("strategy_id", strategyID).
			Ints64("security_ids", plan.MissingPrices).
			Msg("Skipping securities without a price")
		s.metrics.ObserveMissingPrices(len(plan.MissingPrices))
	}

	calc = &Calculation{
		StrategyID:              strategyID,
		CurrentValue:            plan.CurrentValue,
		TargetValue:             plan.TargetValue,
		Actions:                 viewActions(plan.Actions, quotes),
		MissingPriceSecurityIDs: plan.MissingPrices,
	}

	switch {
	case plan.Suppressed:
		outcome = metrics.OutcomeSuppressed
		s.log.Debug().
			Int64("strategy_id", strategyID).
			Float64("turnover_percent", plan.TurnoverPercent()).
			Msg("Rebalancing below materiality threshold")
	case len(plan.Actions) == 0:
		outcome = metrics.OutcomeEmpty
	default:
		rec := &Record{
			StrategyID: strategyID,
			Actions:    plan.Actions,
			CreatedAt:  s.clock.Now().Unix(),
		}
		if err := s.records.Create(ctx, rec); err != nil {
			return nil, err
		}
		calc.RecordID = rec.UUID
		outcome = metrics.OutcomePersisted

		s.metrics.ObserveTurnover(plan.TurnoverPercent())
		for _, a := range plan.Actions {
			s.metrics.ObserveActions(string(a.Kind), 1)
		}
		s.log.Info().
			Int64("strategy_id", strategyID).
			Int64("record_id", rec.ID).
			Int("actions", len(plan.Actions)).
			Float64("turnover_percent", plan.TurnoverPercent()).
			Msg("Rebalancing calculated")
	}

	s.emitter.EmitTyped(events.RebalanceCalculated, "rebalancing", &events.RebalanceCalculatedData{
		StrategyID:      strategyID,
		RecordID:        calc.RecordID,
		Actions:         len(calc.Actions),
		TurnoverPercent: plan.TurnoverPercent(),
		Suppressed:      plan.Suppressed,
		MissingPrices:   len(plan.MissingPrices),
	})

	return calc, nil
}

// GetPendingRebalancing returns the latest pending record's actions.
// Values are not recomputed, so current and target value are zero.
func (s *Service) GetPendingRebalancing(ctx context.Context, strategyID int64) (*Calculation, error) {
	if _, err := s.strategyRepo.GetByID(ctx, strategyID); err != nil {
		return nil, err
	}

	calc := &Calculation{StrategyID: strategyID, Actions: []ActionView{}}

	rec, err := s.records.LatestPending(ctx, strategyID)
	if err != nil || rec == nil {
		return calc, err
	}

	ids := make([]int64, 0, len(rec.Actions))
	for _, a := range rec.Actions {
		ids = append(ids, a.SecurityID)
	}
	quotes, err := s.prices.GetQuotes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	calc.RecordID = rec.UUID
	calc.Actions = viewActions(rec.Actions, quotes)
	return calc, nil
}

// GetRebalancingHistory returns executed records, newest first
func (s *Service) GetRebalancingHistory(ctx context.Context, strategyID int64) ([]Record, error) {
	if _, err := s.strategyRepo.GetByID(ctx, strategyID); err != nil {
		return nil, err
	}
	return s.records.ListExecuted(ctx, strategyID, HistoryLimit)
}

func viewActions(actions []Action, quotes map[int64]domain.Quote) []ActionView {
	views := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, newActionView(a, quotes[a.SecurityID].Symbol))
	}
	return views
}

func priceMap(quotes map[int64]domain.Quote) map[int64]float64 {
	prices := make(map[int64]float64, len(quotes))
	for id, q := range quotes {
		prices[id] = q.Price
	}
	return prices
}

func unionIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, list := range [][]int64{a, b} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
