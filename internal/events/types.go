// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	// Strategy lifecycle
	StrategyCreated EventType = "STRATEGY_CREATED"
	StrategyUpdated EventType = "STRATEGY_UPDATED"
	StrategyDeleted EventType = "STRATEGY_DELETED"

	// Rebalancing engine
	RebalanceCalculated   EventType = "REBALANCE_CALCULATED"
	RebalanceExecuted     EventType = "REBALANCE_EXECUTED"
	RebalanceUndone       EventType = "REBALANCE_UNDONE"
	AllocationsPropagated EventType = "ALLOCATIONS_PROPAGATED"

	// Operations
	SnapshotsTaken  EventType = "SNAPSHOTS_TAKEN"
	BackupCompleted EventType = "BACKUP_COMPLETED"
	ErrorOccurred   EventType = "ERROR_OCCURRED"
)

// Event represents a system event as published on the bus
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
