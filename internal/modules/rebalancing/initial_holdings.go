package rebalancing

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

// SeedInitialHoldings buys the target position of a new strategy inside tx
// and reports the cash left over together with any unpriced securities.
// Satisfies strategies.HoldingsSeeder.
func (s *Service) SeedInitialHoldings(ctx context.Context, tx *sql.Tx, strategy *strategies.Strategy) (*strategies.SeedResult, error) {
	quotes, err := s.prices.GetQuotes(ctx, strategy.Allocations.SecurityIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	targets, err := CalculateTargets(strategy.TotalFunds, strategy.Allocations, priceMap(quotes))
	if err != nil {
		return nil, err
	}
	if len(targets.Missing) > 0 {
		s.log.Warn().
			Int64("strategy_id", strategy.ID).
			Ints64("security_ids", targets.Missing).
			Msg("Initial holdings skip securities without a price")
		s.metrics.ObserveMissingPrices(len(targets.Missing))
	}

	repo := s.holdingRepo.WithTx(tx)
	now := s.clock.Now().Unix()
	created := 0
	for _, id := range targets.Order {
		t := targets.Targets[id]
		if t.Quantity <= 0 {
			continue
		}
		_, err := repo.Create(ctx, portfolio.Holding{
			UserID:       strategy.UserID,
			StrategyID:   &strategy.ID,
			PortfolioID:  portfolioFor(strategy, id),
			SecurityID:   id,
			Quantity:     t.Quantity,
			AveragePrice: t.Price,
			CurrentValue: t.Value(),
			PurchaseDate: &now,
		})
		if err != nil {
			return nil, err
		}
		created++
	}

	remaining := strategy.TotalFunds - targets.TotalValue()
	s.log.Info().
		Int64("strategy_id", strategy.ID).
		Int("holdings", created).
		Float64("remaining_cash", remaining).
		Msg("Initial holdings created")
	return &strategies.SeedResult{
		RemainingCash:           remaining,
		MissingPriceSecurityIDs: targets.Missing,
	}, nil
}
