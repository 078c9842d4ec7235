// Package rebalancing computes target share quantities for a strategy,
// turns the gap to its current holdings into buy and sell actions, and
// applies or reverses those actions against the holdings and cash buffer.
package rebalancing

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind is the side of a rebalancing action
type ActionKind string

const (
	// ActionBuy adds shares and debits cash
	ActionBuy ActionKind = "buy"
	// ActionSell removes shares and credits cash
	ActionSell ActionKind = "sell"
)

// Valid reports whether k is a known side
func (k ActionKind) Valid() bool {
	return k == ActionBuy || k == ActionSell
}

// Inverse returns the side that reverses k
func (k ActionKind) Inverse() ActionKind {
	if k == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// Action is one persisted trade instruction.
// Layout on disk: {"action": "buy"|"sell", "security_id", "quantity", "price"}
type Action struct {
	Kind       ActionKind `json:"action"`
	SecurityID int64      `json:"security_id"`
	Quantity   int64      `json:"quantity"`
	Price      float64    `json:"price"`
}

// Value is quantity × price
func (a Action) Value() float64 {
	return float64(a.Quantity) * a.Price
}

// CashDelta is the change to remaining cash when the action is applied
func (a Action) CashDelta() float64 {
	if a.Kind == ActionBuy {
		return -a.Value()
	}
	return a.Value()
}

// UnmarshalJSON rejects unknown sides and non-positive quantities
func (a *Action) UnmarshalJSON(data []byte) error {
	type Alias Action
	var raw Alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Kind.Valid() {
		return fmt.Errorf("unknown action %q", raw.Kind)
	}
	if raw.Quantity <= 0 {
		return fmt.Errorf("action quantity must be positive, got %d", raw.Quantity)
	}
	*a = Action(raw)
	return nil
}

// ActionView is an action as returned to callers
type ActionView struct {
	Action
	Symbol      string  `json:"symbol,omitempty"`
	TotalAmount float64 `json:"total_amount"`
}

func newActionView(a Action, symbol string) ActionView {
	return ActionView{Action: a, Symbol: symbol, TotalAmount: a.Value()}
}

// MarshalJSON flattens the embedded action.
// Action has its own UnmarshalJSON, which would otherwise be promoted.
func (v ActionView) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind        ActionKind `json:"action"`
		SecurityID  int64      `json:"security_id"`
		Symbol      string     `json:"symbol,omitempty"`
		Quantity    int64      `json:"quantity"`
		Price       float64    `json:"price"`
		TotalAmount float64    `json:"total_amount"`
	}{v.Kind, v.SecurityID, v.Symbol, v.Quantity, v.Price, v.TotalAmount})
}

// Calculation is the result of calculate and pending lookups
type Calculation struct {
	StrategyID              int64        `json:"strategy_id"`
	RecordID                string       `json:"record_id,omitempty"`
	CurrentValue            float64      `json:"current_value"`
	TargetValue             float64      `json:"target_value"`
	Actions                 []ActionView `json:"actions"`
	MissingPriceSecurityIDs []int64      `json:"missing_price_security_ids,omitempty"`
}

// RecordState is the lifecycle position of a rebalancing record
type RecordState string

const (
	StatePending  RecordState = "pending"
	StateExecuted RecordState = "executed"
	StateUndone   RecordState = "undone"
)

// Record is a persisted action list and its lifecycle flags
type Record struct {
	ID         int64    `json:"id"`
	UUID       string   `json:"record"`
	StrategyID int64    `json:"strategy_id"`
	Actions    []Action `json:"actions"`
	Executed   bool     `json:"executed"`
	ExecutedAt *int64   `json:"-"`
	Undone     bool     `json:"undone"`
	UndoneAt   *int64   `json:"-"`
	CreatedAt  int64    `json:"-"`
}

// State derives the lifecycle state from the flags
func (r Record) State() RecordState {
	switch {
	case r.Undone:
		return StateUndone
	case r.Executed:
		return StateExecuted
	default:
		return StatePending
	}
}

// MarshalJSON renders timestamps as RFC3339
func (r Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	return json.Marshal(&struct {
		*Alias
		State      RecordState `json:"state"`
		ExecutedAt *string     `json:"executed_at"`
		UndoneAt   *string     `json:"undone_at"`
		CreatedAt  string      `json:"created_at"`
	}{
		Alias:      (*Alias)(&r),
		State:      r.State(),
		ExecutedAt: formatUnix(r.ExecutedAt),
		UndoneAt:   formatUnix(r.UndoneAt),
		CreatedAt:  time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339),
	})
}

func formatUnix(ts *int64) *string {
	if ts == nil {
		return nil
	}
	s := time.Unix(*ts, 0).UTC().Format(time.RFC3339)
	return &s
}

// ApplyResult summarizes an execute or undo
type ApplyResult struct {
	RecordID      int64   `json:"record_id"`
	RecordUUID    string  `json:"record"`
	StrategyID    int64   `json:"strategy_id"`
	Actions       int     `json:"actions"`
	CashDelta     float64 `json:"cash_delta"`
	RemainingCash float64 `json:"remaining_cash"`
}
