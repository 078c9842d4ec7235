package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
)

func twoPortfolios() Allocations {
	return Allocations{
		{PortfolioID: 1, Percentage: 60, StockAllocations: map[int64]float64{10: 50, 11: 50}},
		{PortfolioID: 2, Percentage: 40, StockAllocations: map[int64]float64{11: 25, 12: 75}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		allocs  Allocations
		wantErr bool
	}{
		{"valid", twoPortfolios(), false},
		{
			"within tolerance",
			Allocations{{PortfolioID: 1, Percentage: 99.995, StockAllocations: map[int64]float64{1: 33.335, 2: 33.335, 3: 33.33}}},
			false,
		},
		{
			// 3 × 33.33 is 99.99 in float64, a hair more than 0.01 below 100
			"thirds rounded to two decimals",
			Allocations{{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 33.33, 2: 33.33, 3: 33.33}}},
			true,
		},
		{
			"top level off by more than tolerance",
			Allocations{{PortfolioID: 1, Percentage: 99.9, StockAllocations: map[int64]float64{1: 100}}},
			true,
		},
		{
			"stock level off",
			Allocations{{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 60, 2: 30}}},
			true,
		},
		{"empty", Allocations{}, true},
		{
			"negative percentage",
			Allocations{
				{PortfolioID: 1, Percentage: 110, StockAllocations: map[int64]float64{1: 100}},
				{PortfolioID: 2, Percentage: -10, StockAllocations: map[int64]float64{2: 100}},
			},
			true,
		},
		{
			"duplicate portfolio",
			Allocations{
				{PortfolioID: 1, Percentage: 50, StockAllocations: map[int64]float64{1: 100}},
				{PortfolioID: 1, Percentage: 50, StockAllocations: map[int64]float64{2: 100}},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.allocs.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrAllocationInvariant)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCommitment_AllowsUnderAllocation(t *testing.T) {
	allocs := Allocations{{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 40}}}
	assert.NoError(t, allocs.ValidateCommitment())
	assert.Error(t, allocs.Validate())

	over := Allocations{{PortfolioID: 1, Percentage: 100, StockAllocations: map[int64]float64{1: 60, 2: 60}}}
	assert.ErrorIs(t, over.ValidateCommitment(), domain.ErrAllocationInvariant)
}

func TestEncodeDecodeUsesStringKeys(t *testing.T) {
	raw, err := twoPortfolios().Encode()
	require.NoError(t, err)
	assert.Contains(t, raw, `"stock_allocations":{"10":50,"11":50}`)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, twoPortfolios(), decoded)

	empty, err := Decode("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = Decode("{not json")
	assert.Error(t, err)
}

func TestSecurityIDsAndReferences(t *testing.T) {
	a := twoPortfolios()

	assert.Equal(t, []int64{10, 11, 12}, a.SecurityIDs())
	assert.Equal(t, []int64{1, 2}, a.PortfolioIDs())
	assert.True(t, a.References(2))
	assert.False(t, a.References(3))
	assert.True(t, a.ReferencesSecurity(12))
	assert.False(t, a.ReferencesSecurity(99))
}

func TestCloneIsDeep(t *testing.T) {
	a := twoPortfolios()
	b := a.Clone()
	b[0].StockAllocations[10] = 1

	assert.Equal(t, 50.0, a[0].StockAllocations[10])
}

func TestMembershipDiff(t *testing.T) {
	removed, added := MembershipDiff([]int64{1, 2, 3}, []int64{3, 4, 5})
	assert.Equal(t, []int64{1, 2}, removed)
	assert.Equal(t, []int64{4, 5}, added)

	removed, added = MembershipDiff([]int64{1}, []int64{1})
	assert.Empty(t, removed)
	assert.Empty(t, added)
}

func TestApplyMembershipChange(t *testing.T) {
	t.Run("removal only leaves survivors untouched", func(t *testing.T) {
		p := PortfolioAllocation{PortfolioID: 1, StockAllocations: map[int64]float64{1: 50, 2: 30, 3: 20}}
		p.ApplyMembershipChange([]int64{3}, nil)
		assert.Equal(t, map[int64]float64{1: 50, 2: 30}, p.StockAllocations)
	})

	t.Run("survivors rescaled uniformly and newcomers get equal share", func(t *testing.T) {
		p := PortfolioAllocation{PortfolioID: 1, StockAllocations: map[int64]float64{1: 50, 2: 30, 3: 20}}
		p.ApplyMembershipChange([]int64{3}, []int64{4, 5})

		// 2 survivors + 2 newcomers: scale 2/4, newcomer share 100/4
		assert.InDelta(t, 25.0, p.StockAllocations[1], 1e-9)
		assert.InDelta(t, 15.0, p.StockAllocations[2], 1e-9)
		assert.InDelta(t, 25.0, p.StockAllocations[4], 1e-9)
		assert.InDelta(t, 25.0, p.StockAllocations[5], 1e-9)
		assert.NotContains(t, p.StockAllocations, int64(3))
	})

	t.Run("no survivors splits equally among newcomers", func(t *testing.T) {
		p := PortfolioAllocation{PortfolioID: 1, StockAllocations: map[int64]float64{1: 100}}
		p.ApplyMembershipChange([]int64{1}, []int64{7, 8, 9, 10})

		for _, id := range []int64{7, 8, 9, 10} {
			assert.InDelta(t, 25.0, p.StockAllocations[id], 1e-9)
		}
		assert.Len(t, p.StockAllocations, 4)
	})

	t.Run("nil map is initialised", func(t *testing.T) {
		p := PortfolioAllocation{PortfolioID: 1}
		p.ApplyMembershipChange(nil, []int64{1, 2})
		assert.InDelta(t, 50.0, p.StockAllocations[1], 1e-9)
	})
}
