package snapshots

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func newTestService(t *testing.T, clock domain.Clock) (*Service, *sql.DB) {
	t.Helper()
	db := testingpkg.NewPortfolioDB(t).Conn()
	log := zerolog.Nop()
	svc := NewService(
		NewRepository(db, log),
		strategies.NewRepository(db, log),
		portfolio.NewHoldingRepository(db, log),
		clock,
		log,
	)
	return svc, db
}

func TestPerformance(t *testing.T) {
	assert.InDelta(t, 10.0, Performance(11000, 10000), 1e-9)
	assert.InDelta(t, -5.0, Performance(9500, 10000), 1e-9)
	assert.Equal(t, 0.0, Performance(500, 0))
}

func TestTake_SumsHoldingsAndCash(t *testing.T) {
	clock := domain.FixedClock{T: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	svc, db := newTestService(t, clock)

	strategyID := testingpkg.SeedStrategy(t, db, 1, 10000, 200, "[]")
	testingpkg.SeedHolding(t, db, strategyID, 1, 50, 100) // 5000
	testingpkg.SeedHolding(t, db, strategyID, 2, 20, 300) // 6000

	snapshot, err := svc.Take(context.Background(), strategyID)
	require.NoError(t, err)

	assert.Equal(t, 11200.0, snapshot.TotalValue)
	assert.InDelta(t, 12.0, snapshot.PerformancePercentage, 1e-9)
	assert.Equal(t, clock.T.Unix(), snapshot.SnapshotDate)
	assert.Greater(t, snapshot.ID, int64(0))
}

func TestTake_UnknownStrategy(t *testing.T) {
	svc, _ := newTestService(t, domain.SystemClock{})

	_, err := svc.Take(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.List(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestList_NewestFirstAndLimited(t *testing.T) {
	svc, db := newTestService(t, domain.SystemClock{})
	strategyID := testingpkg.SeedStrategy(t, db, 1, 1000, 1000, "[]")

	repo := NewRepository(db, zerolog.Nop())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	for i := 0; i < DefaultListLimit+5; i++ {
		_, err := repo.Create(context.Background(), Snapshot{
			StrategyID:   strategyID,
			TotalValue:   float64(1000 + i),
			SnapshotDate: base + int64(i)*86400,
		})
		require.NoError(t, err)
	}

	list, err := svc.List(context.Background(), strategyID)
	require.NoError(t, err)
	require.Len(t, list, DefaultListLimit)
	assert.Equal(t, float64(1000+DefaultListLimit+4), list[0].TotalValue)
	assert.True(t, list[0].SnapshotDate > list[1].SnapshotDate)
}
