package events

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// StrategyChangedData contains data for StrategyCreated, StrategyUpdated and StrategyDeleted events
type StrategyChangedData struct {
	Type       EventType `json:"-"`
	StrategyID int64     `json:"strategy_id"`
	UserID     int64     `json:"user_id,omitempty"`
}

// EventType returns the event type carried in Type
func (d *StrategyChangedData) EventType() EventType {
	return d.Type
}

// RebalanceCalculatedData contains data for RebalanceCalculated events
type RebalanceCalculatedData struct {
	StrategyID      int64   `json:"strategy_id"`
	RecordID        string  `json:"record_id,omitempty"`
	Actions         int     `json:"actions"`
	TurnoverPercent float64 `json:"turnover_percent"`
	Suppressed      bool    `json:"suppressed"`
	MissingPrices   int     `json:"missing_prices,omitempty"`
}

// EventType returns the event type for RebalanceCalculatedData
func (d *RebalanceCalculatedData) EventType() EventType {
	return RebalanceCalculated
}

// RebalanceAppliedData contains data for RebalanceExecuted and RebalanceUndone events
type RebalanceAppliedData struct {
	Type          EventType `json:"-"`
	StrategyID    int64     `json:"strategy_id"`
	RecordID      string    `json:"record_id"`
	Actions       int       `json:"actions"`
	CashDelta     float64   `json:"cash_delta"`
	RemainingCash float64   `json:"remaining_cash"`
}

// EventType returns the event type carried in Type
func (d *RebalanceAppliedData) EventType() EventType {
	return d.Type
}

// AllocationsPropagatedData contains data for AllocationsPropagated events
type AllocationsPropagatedData struct {
	PortfolioID int64   `json:"portfolio_id"`
	StrategyIDs []int64 `json:"strategy_ids"`
	Removed     []int64 `json:"removed,omitempty"`
	Added       []int64 `json:"added,omitempty"`
}

// EventType returns the event type for AllocationsPropagatedData
func (d *AllocationsPropagatedData) EventType() EventType {
	return AllocationsPropagated
}

// SnapshotsTakenData contains data for SnapshotsTaken events
type SnapshotsTakenData struct {
	Strategies int `json:"strategies"`
	Failed     int `json:"failed"`
}

// EventType returns the event type for SnapshotsTakenData
func (d *SnapshotsTakenData) EventType() EventType {
	return SnapshotsTaken
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	Key       string `json:"key"`
	SizeBytes int64  `json:"size_bytes"`
	Uploaded  bool   `json:"uploaded"`
	Pruned    int    `json:"pruned,omitempty"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
