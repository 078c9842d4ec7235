// Package allocation models a strategy's hierarchical target allocation:
// a strategy splits its funds across portfolios by percentage and each
// portfolio splits its share across securities by percentage.
package allocation

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PortfolioAllocation is one portfolio's slice of a strategy.
// StockAllocations maps security id -> percentage of this portfolio's funds.
type PortfolioAllocation struct {
	PortfolioID      int64             `json:"portfolio_id"`
	Percentage       float64           `json:"percentage"`
	StockAllocations map[int64]float64 `json:"stock_allocations"`
}

// Allocations is the ordered list of portfolio allocations of a strategy.
type Allocations []PortfolioAllocation

// SecurityIDs returns the allocated security ids in ascending order.
func (p PortfolioAllocation) SecurityIDs() []int64 {
	ids := make([]int64, 0, len(p.StockAllocations))
	for id := range p.StockAllocations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PortfolioIDs returns portfolio ids in allocation order.
func (a Allocations) PortfolioIDs() []int64 {
	ids := make([]int64, 0, len(a))
	for _, alloc := range a {
		ids = append(ids, alloc.PortfolioID)
	}
	return ids
}

// References reports whether the strategy allocates to the given portfolio.
func (a Allocations) References(portfolioID int64) bool {
	return a.Find(portfolioID) >= 0
}

// Find returns the index of the portfolio allocation, or -1.
func (a Allocations) Find(portfolioID int64) int {
	for i, alloc := range a {
		if alloc.PortfolioID == portfolioID {
			return i
		}
	}
	return -1
}

// SecurityIDs returns every security referenced by any portfolio allocation,
// deduplicated and ascending.
func (a Allocations) SecurityIDs() []int64 {
	seen := make(map[int64]struct{})
	for _, alloc := range a {
		for id := range alloc.StockAllocations {
			seen[id] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReferencesSecurity reports whether any portfolio allocation names the security.
func (a Allocations) ReferencesSecurity(securityID int64) bool {
	for _, alloc := range a {
		if _, ok := alloc.StockAllocations[securityID]; ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (a Allocations) Clone() Allocations {
	if a == nil {
		return nil
	}
	out := make(Allocations, len(a))
	for i, alloc := range a {
		stocks := make(map[int64]float64, len(alloc.StockAllocations))
		for id, pct := range alloc.StockAllocations {
			stocks[id] = pct
		}
		out[i] = PortfolioAllocation{
			PortfolioID:      alloc.PortfolioID,
			Percentage:       alloc.Percentage,
			StockAllocations: stocks,
		}
	}
	return out
}

// Encode serializes allocations for the portfolio_allocations column.
// Security ids become JSON object keys (strings).
func (a Allocations) Encode() (string, error) {
	if a == nil {
		a = Allocations{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode allocations: %w", err)
	}
	return string(data), nil
}

// Decode parses the portfolio_allocations column.
func Decode(raw string) (Allocations, error) {
	if raw == "" {
		return Allocations{}, nil
	}
	var a Allocations
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to decode allocations: %w", err)
	}
	for i := range a {
		if a[i].StockAllocations == nil {
			a[i].StockAllocations = make(map[int64]float64)
		}
	}
	return a, nil
}
