// Package snapshots records the performance of strategies over time.
package snapshots

import (
	"encoding/json"
	"time"
)

// Snapshot is a point-in-time valuation of a strategy.
// TotalValue is holdings value plus remaining cash; PerformancePercentage
// compares it to the strategy's committed funds.
type Snapshot struct {
	ID                    int64   `json:"id"`
	StrategyID            int64   `json:"strategy_id"`
	TotalValue            float64 `json:"total_value"`
	PerformancePercentage float64 `json:"performance_percentage"`
	SnapshotDate          int64   `json:"-"` // Unix timestamp
}

// MarshalJSON renders SnapshotDate as RFC3339
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type Alias Snapshot
	return json.Marshal(&struct {
		SnapshotDate string `json:"snapshot_date"`
		*Alias
	}{
		SnapshotDate: time.Unix(s.SnapshotDate, 0).UTC().Format(time.RFC3339),
		Alias:        (*Alias)(&s),
	})
}

// Performance returns (total - funds) / funds × 100, or 0 when no funds were committed.
func Performance(totalValue, totalFunds float64) float64 {
	if totalFunds <= 0 {
		return 0
	}
	return (totalValue - totalFunds) / totalFunds * 100
}
