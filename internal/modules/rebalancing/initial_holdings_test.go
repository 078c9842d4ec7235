package rebalancing

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/allocation"
	"github.com/aristath/rebalancer/internal/modules/strategies"
	"github.com/aristath/rebalancer/internal/modules/universe"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func newStrategyService(env *testEnv) *strategies.Service {
	log := zerolog.Nop()
	svc := strategies.NewService(
		env.db,
		env.strats,
		env.holdings,
		universe.NewSecurityRepository(env.db, log),
		domain.FixedClock{T: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		nil,
		log,
	)
	svc.SetCollaborators(env.service, env.service, nil)
	svc.SetLocker(env.service)
	return svc
}

func TestSeedInitialHoldings_OnStrategyCreate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testingpkg.SeedSecurity(t, env.db, 1, "AAA", 100)
	testingpkg.SeedSecurity(t, env.db, 2, "BBB", 300)

	created, err := newStrategyService(env).Create(ctx, strategies.CreateRequest{
		UserID:     3,
		Name:       "Core",
		TotalFunds: 10000,
		Allocations: allocation.Allocations{
			{PortfolioID: 5, Percentage: 100, StockAllocations: map[int64]float64{1: 50, 2: 50}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, created.RemainingCash)
	assert.Equal(t, 0.0, env.cash(t, created.ID))

	rows, err := env.holdings.ListByStrategy(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, map[int64]int64{1: 52, 2: 16}, aggregate(rows))
	for _, h := range rows {
		assert.Equal(t, int64(3), h.UserID)
		require.NotNil(t, h.PortfolioID)
		assert.Equal(t, int64(5), *h.PortfolioID)
		require.NotNil(t, h.PurchaseDate)
		assert.Equal(t, float64(h.Quantity)*h.AveragePrice, h.CurrentValue)
	}
}

func TestSeedInitialHoldings_LeavesUnspentCash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testingpkg.SeedSecurity(t, env.db, 1, "AAA", 700)

	created, err := newStrategyService(env).Create(ctx, strategies.CreateRequest{
		UserID:     1,
		Name:       "Expensive",
		TotalFunds: 1000,
		Allocations: allocation.Allocations{
			{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 100}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 300.0, created.RemainingCash)
	assert.Equal(t, map[int64]int64{1: 1}, env.quantities(t, created.ID))
}

func TestSeedInitialHoldings_ReportsUnpricedSecurities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testingpkg.SeedSecurity(t, env.db, 1, "AAA", 100)
	// security 2 has never been quoted

	created, err := newStrategyService(env).Create(ctx, strategies.CreateRequest{
		UserID:     1,
		Name:       "Half quoted",
		TotalFunds: 1000,
		Allocations: allocation.Allocations{
			{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 50, 2: 50}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, created.MissingPriceSecurityIDs)
	assert.Equal(t, map[int64]int64{1: 10}, env.quantities(t, created.ID))
	assert.Equal(t, 0.0, created.RemainingCash)

	// the report belongs to the create response only
	stored, err := env.strats.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.MissingPriceSecurityIDs)
}

func TestSeedInitialHoldings_InvalidPriceRollsBackCreate(t *testing.T) {
	env := newTestEnv(t)
	testingpkg.SeedSecurity(t, env.db, 1, "AAA", 100)
	testingpkg.SetSecurityPrice(t, env.db, 1, -1)

	_, err := newStrategyService(env).Create(context.Background(), strategies.CreateRequest{
		UserID:     1,
		Name:       "Broken feed",
		TotalFunds: 1000,
		Allocations: allocation.Allocations{
			{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 100}},
		},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	assert.Equal(t, 0, testingpkg.CountRows(t, env.db, "strategies", ""))
	assert.Equal(t, 0, testingpkg.CountRows(t, env.db, "holdings", ""))
}

func TestUpdateAllocations_TriggersRecalculation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testingpkg.SeedSecurity(t, env.db, 1, "AAA", 100)
	testingpkg.SeedSecurity(t, env.db, 2, "BBB", 100)

	svc := newStrategyService(env)
	created, err := svc.Create(ctx, strategies.CreateRequest{
		UserID:     1,
		Name:       "Shift",
		TotalFunds: 10000,
		Allocations: allocation.Allocations{
			{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 100}},
		},
	})
	require.NoError(t, err)

	next := allocation.Allocations{
		{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 50, 2: 50}},
	}
	_, err = svc.Update(ctx, created.ID, strategies.UpdateRequest{Allocations: &next})
	require.NoError(t, err)

	pending, err := env.service.GetPendingRebalancing(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, pending.Actions, 2)
	assert.Equal(t, ActionSell, pending.Actions[0].Kind)
	assert.Equal(t, int64(50), pending.Actions[0].Quantity)
	assert.Equal(t, ActionBuy, pending.Actions[1].Kind)
	assert.Equal(t, "BBB", pending.Actions[1].Symbol)
}
