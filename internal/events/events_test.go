package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeFiltersByType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var executed, all []Event
	unsubscribe := bus.Subscribe(RebalanceExecuted, func(e Event) { executed = append(executed, e) })
	bus.SubscribeAll(func(e Event) { all = append(all, e) })

	bus.Emit(RebalanceExecuted, "rebalancing", map[string]interface{}{"strategy_id": 1})
	bus.Emit(RebalanceUndone, "rebalancing", nil)

	require.Len(t, executed, 1)
	assert.Equal(t, "rebalancing", executed[0].Module)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, bus.SubscriberCount())

	unsubscribe()
	unsubscribe() // idempotent
	bus.Emit(RebalanceExecuted, "rebalancing", nil)
	assert.Len(t, executed, 1)
	assert.Equal(t, 1, bus.SubscriberCount())
}

func TestBus_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	called := false
	bus.SubscribeAll(func(Event) { panic("boom") })
	bus.SubscribeAll(func(Event) { called = true })

	assert.NotPanics(t, func() { bus.Emit(ErrorOccurred, "test", nil) })
	assert.True(t, called)
}

func TestManager_EmitTypedConvertsToMap(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got Event
	bus.Subscribe(RebalanceCalculated, func(e Event) { got = e })

	manager.EmitTyped(RebalanceCalculated, "rebalancing", &RebalanceCalculatedData{
		StrategyID:      7,
		RecordID:        "abc",
		Actions:         3,
		TurnoverPercent: 12.5,
	})

	assert.Equal(t, RebalanceCalculated, got.Type)
	assert.Equal(t, float64(7), got.Data["strategy_id"])
	assert.Equal(t, "abc", got.Data["record_id"])
	assert.Equal(t, 12.5, got.Data["turnover_percent"])
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got Event
	bus.Subscribe(ErrorOccurred, func(e Event) { got = e })

	manager.EmitError("scheduler", errors.New("disk full"), map[string]interface{}{"job": "backup"})

	assert.Equal(t, "disk full", got.Data["error"])
	assert.Equal(t, "scheduler", got.Module)
}

func TestTypedDataCarriesOwnType(t *testing.T) {
	assert.Equal(t, StrategyDeleted, (&StrategyChangedData{Type: StrategyDeleted}).EventType())
	assert.Equal(t, RebalanceUndone, (&RebalanceAppliedData{Type: RebalanceUndone}).EventType())
	assert.Equal(t, BackupCompleted, (&BackupCompletedData{}).EventType())
}
