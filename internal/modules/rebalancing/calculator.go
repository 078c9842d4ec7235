package rebalancing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/allocation"
)

// Target is the ideal whole-share position in one security
type Target struct {
	SecurityID int64
	Quantity   int64
	Price      float64
}

// Value is quantity × price
func (t Target) Value() float64 {
	return float64(t.Quantity) * t.Price
}

// TargetAllocation is the output of CalculateTargets
type TargetAllocation struct {
	// Targets holds one entry per priced security, including zero quantities
	Targets map[int64]*Target
	// Order lists target securities in allocation order (portfolio order,
	// then ascending security id within a portfolio)
	Order []int64
	// Leftover is the funds not converted into shares
	Leftover float64
	// Missing lists allocated securities skipped for lack of a price
	Missing []int64
}

// Has reports whether the security received a target
func (ta *TargetAllocation) Has(securityID int64) bool {
	_, ok := ta.Targets[securityID]
	return ok
}

// TotalValue is Σ target quantity × price
func (ta *TargetAllocation) TotalValue() float64 {
	qty := make([]float64, len(ta.Order))
	prices := make([]float64, len(ta.Order))
	for i, id := range ta.Order {
		t := ta.Targets[id]
		qty[i] = float64(t.Quantity)
		prices[i] = t.Price
	}
	return floats.Dot(qty, prices)
}

// Cheapest returns the lowest target price, or +Inf when there are no targets
func (ta *TargetAllocation) Cheapest() float64 {
	cheapest := math.Inf(1)
	for _, t := range ta.Targets {
		if t.Price < cheapest {
			cheapest = t.Price
		}
	}
	return cheapest
}

// CalculateTargets converts funds into whole-share targets.
//
// Each portfolio gets funds × percentage/100, each security within it
// portfolio_funds × stock_percentage/100, floored to whole shares at the
// current price. Securities allocated from several portfolios are summed.
// Leftover funds are then spent one share at a time, cheapest security
// first, in repeated passes until a pass buys nothing.
//
// Securities absent from prices are skipped and reported in Missing.
// A price that is present but not positive fails with domain.ErrInvalidPrice.
func CalculateTargets(funds float64, allocs allocation.Allocations, prices map[int64]float64) (*TargetAllocation, error) {
	if err := allocs.ValidateCommitment(); err != nil {
		return nil, err
	}
	if math.IsNaN(funds) || math.IsInf(funds, 0) {
		return nil, fmt.Errorf("funds must be finite, got %v", funds)
	}
	if funds < 0 {
		funds = 0
	}

	ta := &TargetAllocation{Targets: make(map[int64]*Target)}
	missing := make(map[int64]struct{})

	for _, alloc := range allocs {
		portfolioFunds := funds * alloc.Percentage / 100
		for _, id := range alloc.SecurityIDs() {
			price, ok := prices[id]
			if !ok {
				missing[id] = struct{}{}
				continue
			}
			if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
				return nil, fmt.Errorf("%w: security %d has price %v", domain.ErrInvalidPrice, id, price)
			}

			stockFunds := portfolioFunds * alloc.StockAllocations[id] / 100
			qty := int64(math.Floor(stockFunds / price))

			t, ok := ta.Targets[id]
			if !ok {
				t = &Target{SecurityID: id, Price: price}
				ta.Targets[id] = t
				ta.Order = append(ta.Order, id)
			}
			t.Quantity += qty
		}
	}

	for id := range missing {
		ta.Missing = append(ta.Missing, id)
	}
	sort.Slice(ta.Missing, func(i, j int) bool { return ta.Missing[i] < ta.Missing[j] })

	ta.Leftover = funds - ta.TotalValue()
	ta.spendLeftover()
	return ta, nil
}

// spendLeftover is the greedy pass. It favors cheap securities on purpose.
func (ta *TargetAllocation) spendLeftover() {
	byPrice := make([]*Target, 0, len(ta.Targets))
	for _, id := range ta.Order {
		byPrice = append(byPrice, ta.Targets[id])
	}
	sort.SliceStable(byPrice, func(i, j int) bool {
		if byPrice[i].Price != byPrice[j].Price {
			return byPrice[i].Price < byPrice[j].Price
		}
		return byPrice[i].SecurityID < byPrice[j].SecurityID
	})

	for {
		allocated := false
		for _, t := range byPrice {
			if ta.Leftover >= t.Price {
				t.Quantity++
				ta.Leftover -= t.Price
				allocated = true
			}
		}
		if !allocated {
			return
		}
	}
}
