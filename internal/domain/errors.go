package domain

import "errors"

// Domain error kinds. Call sites wrap these with context, e.g.
// fmt.Errorf("%w: strategy %d", domain.ErrNotFound, id), and callers match
// them with errors.Is.
var (
	// ErrNotFound is returned when a strategy, record or holding does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned for illegal record transitions
	// (undo of a pending or already undone rebalancing).
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidPrice is returned when a non-positive price would feed quantization.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrAllocationInvariant is returned when allocation percentages break the sum-to-100 rule.
	ErrAllocationInvariant = errors.New("allocation invariant violation")
)
