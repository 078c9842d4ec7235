// Package portfolio stores the share positions (holdings) a strategy owns.
package portfolio

// Holding is one position row. A (strategy, security) pair may have several
// rows when positions were sourced from different portfolios.
type Holding struct {
	ID           int64   `json:"id"`
	UserID       int64   `json:"user_id"`
	StrategyID   *int64  `json:"strategy_id,omitempty"`
	PortfolioID  *int64  `json:"portfolio_id,omitempty"`
	SecurityID   int64   `json:"security_id"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	CurrentValue float64 `json:"current_value"`
	PurchaseDate *int64  `json:"purchase_date,omitempty"` // Unix timestamp
	Notes        string  `json:"notes,omitempty"`
}

// CostBasis returns quantity × average price.
func (h Holding) CostBasis() float64 {
	return float64(h.Quantity) * h.AveragePrice
}
