// Package strategies manages investment strategies: capital committed by an
// owner and split across portfolios and securities by percentage.
package strategies

import (
	"encoding/json"
	"time"

	"github.com/aristath/rebalancer/internal/modules/allocation"
)

// Strategy is a capital-allocation plan.
// TotalFunds is the committed baseline; RemainingCash is the uninvested buffer
// and only changes through rebalancing execution and undo.
type Strategy struct {
	ID            int64                  `json:"id"`
	UserID        int64                  `json:"user_id"`
	Name          string                 `json:"name"`
	TotalFunds    float64                `json:"total_funds"`
	RemainingCash float64                `json:"remaining_cash"`
	Allocations   allocation.Allocations `json:"portfolio_allocations"`
	CreatedAt     int64                  `json:"-"` // Unix timestamp

	// MissingPriceSecurityIDs is only set on create: allocated securities the
	// initial holdings skipped because they had no price. Not persisted.
	MissingPriceSecurityIDs []int64 `json:"missing_price_security_ids,omitempty"`
}

// MarshalJSON renders CreatedAt as RFC3339
func (s Strategy) MarshalJSON() ([]byte, error) {
	type Alias Strategy
	return json.Marshal(&struct {
		CreatedAt string `json:"created_at"`
		*Alias
	}{
		CreatedAt: time.Unix(s.CreatedAt, 0).UTC().Format(time.RFC3339),
		Alias:     (*Alias)(&s),
	})
}

// CreateRequest carries the fields of a new strategy
type CreateRequest struct {
	UserID      int64                  `json:"user_id"`
	Name        string                 `json:"name"`
	TotalFunds  float64                `json:"total_funds"`
	Allocations allocation.Allocations `json:"portfolio_allocations"`
}

// UpdateRequest carries optional strategy changes; nil fields are left as they are
type UpdateRequest struct {
	Name        *string                 `json:"name,omitempty"`
	TotalFunds  *float64                `json:"total_funds,omitempty"`
	Allocations *allocation.Allocations `json:"portfolio_allocations,omitempty"`
}
