package allocation

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/rebalancer/internal/domain"
)

// PercentTolerance is the epsilon for every sum-to-100 check.
const PercentTolerance = 0.01

// Validate enforces the full allocation invariant: top-level percentages sum
// to 100±0.01 and every portfolio's stock percentages sum to 100±0.01.
// Used at the strategy create/update boundary.
func (a Allocations) Validate() error {
	if err := a.checkRanges(); err != nil {
		return err
	}

	if total := a.TotalPercentage(); !withinTolerance(total, 100) {
		return fmt.Errorf("%w: portfolio allocations must sum to 100%% (got %.4f)", domain.ErrAllocationInvariant, total)
	}

	for _, alloc := range a {
		if total := alloc.TotalPercentage(); !withinTolerance(total, 100) {
			return fmt.Errorf("%w: stock allocations in portfolio %d must sum to 100%% (got %.4f)",
				domain.ErrAllocationInvariant, alloc.PortfolioID, total)
		}
	}
	return nil
}

// ValidateCommitment is the defensive check run before quantization. It
// rejects anything that could commit more than the available funds but lets
// under-allocated maps through, since membership propagation removes
// securities without redistributing their share.
func (a Allocations) ValidateCommitment() error {
	if err := a.checkRanges(); err != nil {
		return err
	}

	if total := a.TotalPercentage(); total > 100+PercentTolerance {
		return fmt.Errorf("%w: portfolio allocations exceed 100%% (got %.4f)", domain.ErrAllocationInvariant, total)
	}

	for _, alloc := range a {
		if total := alloc.TotalPercentage(); total > 100+PercentTolerance {
			return fmt.Errorf("%w: stock allocations in portfolio %d exceed 100%% (got %.4f)",
				domain.ErrAllocationInvariant, alloc.PortfolioID, total)
		}
	}
	return nil
}

// TotalPercentage sums the top-level portfolio percentages.
func (a Allocations) TotalPercentage() float64 {
	pcts := make([]float64, len(a))
	for i, alloc := range a {
		pcts[i] = alloc.Percentage
	}
	return floats.Sum(pcts)
}

// TotalPercentage sums the stock percentages of one portfolio.
func (p PortfolioAllocation) TotalPercentage() float64 {
	pcts := make([]float64, 0, len(p.StockAllocations))
	for _, id := range p.SecurityIDs() {
		pcts = append(pcts, p.StockAllocations[id])
	}
	return floats.Sum(pcts)
}

func (a Allocations) checkRanges() error {
	seen := make(map[int64]struct{}, len(a))
	for _, alloc := range a {
		if _, dup := seen[alloc.PortfolioID]; dup {
			return fmt.Errorf("%w: portfolio %d allocated more than once", domain.ErrAllocationInvariant, alloc.PortfolioID)
		}
		seen[alloc.PortfolioID] = struct{}{}

		if alloc.Percentage < 0 || alloc.Percentage > 100+PercentTolerance {
			return fmt.Errorf("%w: portfolio %d percentage %.4f outside 0-100",
				domain.ErrAllocationInvariant, alloc.PortfolioID, alloc.Percentage)
		}
		for id, pct := range alloc.StockAllocations {
			if pct < 0 || pct > 100+PercentTolerance {
				return fmt.Errorf("%w: security %d in portfolio %d percentage %.4f outside 0-100",
					domain.ErrAllocationInvariant, id, alloc.PortfolioID, pct)
			}
		}
	}
	return nil
}

func withinTolerance(total, target float64) bool {
	diff := total - target
	if diff < 0 {
		diff = -diff
	}
	return diff <= PercentTolerance
}
