package universe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func TestSecurityRepository_GetQuotesSkipsMissingPrices(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	testingpkg.SeedSecurity(t, db.Conn(), 1, "AAA", 100)
	testingpkg.SeedSecurity(t, db.Conn(), 2, "BBB", 0) // no quote yet

	repo := NewSecurityRepository(db.Conn(), zerolog.Nop())

	quotes, err := repo.GetQuotes(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)

	require.Len(t, quotes, 1)
	assert.Equal(t, domain.Quote{SecurityID: 1, Symbol: "AAA", Price: 100}, quotes[1])
	assert.NotContains(t, quotes, int64(2))
	assert.NotContains(t, quotes, int64(3))
}

func TestSecurityRepository_GetQuotesEmpty(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	repo := NewSecurityRepository(db.Conn(), zerolog.Nop())

	quotes, err := repo.GetQuotes(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestSecurityRepository_UpsertAndGet(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	repo := NewSecurityRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	price := 42.5
	require.NoError(t, repo.Upsert(ctx, Security{ID: 7, Symbol: " comi ", Name: "Commercial Intl", CurrentPrice: &price}))

	got, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "COMI", got.Symbol)
	require.NotNil(t, got.CurrentPrice)
	assert.Equal(t, 42.5, *got.CurrentPrice)
	assert.NotNil(t, got.UpdatedAt)

	// Second upsert updates in place
	newPrice := 50.0
	require.NoError(t, repo.Upsert(ctx, Security{ID: 7, Symbol: "COMI", Name: "Commercial Intl", CurrentPrice: &newPrice}))
	got, err = repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 50.0, *got.CurrentPrice)

	missing, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSecurityRepository_RejectsInvalidPrices(t *testing.T) {
	db := testingpkg.NewPortfolioDB(t)
	repo := NewSecurityRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	zero := 0.0
	err := repo.Upsert(ctx, Security{ID: 1, Symbol: "AAA", CurrentPrice: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	testingpkg.SeedSecurity(t, db.Conn(), 2, "BBB", 10)
	assert.ErrorIs(t, repo.UpdatePrice(ctx, 2, -1), domain.ErrInvalidPrice)
	assert.NoError(t, repo.UpdatePrice(ctx, 2, 11))
	assert.ErrorIs(t, repo.UpdatePrice(ctx, 99, 11), domain.ErrNotFound)
}

func TestSecurity_MarshalJSON(t *testing.T) {
	ts := int64(1700000000)
	price := 12.0
	data, err := json.Marshal(Security{ID: 1, Symbol: "AAA", CurrentPrice: &price, UpdatedAt: &ts})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "2023-11-14T22:13:20Z", decoded["updated_at"])
	assert.Equal(t, 12.0, decoded["current_price"])
}
