package rebalancing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/portfolio"
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

type staticPrices map[int64]domain.Quote

func (p staticPrices) GetQuotes(_ context.Context, ids []int64) (map[int64]domain.Quote, error) {
	out := make(map[int64]domain.Quote)
	for _, id := range ids {
		if q, ok := p[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	svc := NewService(
		db,
		NewRecordRepository(db, log),
		strategies.NewRepository(db, log),
		portfolio.NewHoldingRepository(db, log),
		staticPrices{},
		DefaultThresholds(),
		domain.FixedClock{T: time.Unix(1700000000, 0)},
		nil,
		nil,
		log,
	)
	return svc, mock
}

var (
	strategyCols = []string{"id", "user_id", "name", "total_funds", "remaining_cash", "portfolio_allocations", "created_at"}
	recordCols   = []string{"id", "uuid", "strategy_id", "actions", "executed", "executed_at", "undone", "undone_at", "created_at"}
	holdingCols  = []string{"id", "user_id", "strategy_id", "portfolio_id", "security_id", "quantity",
		"average_price", "current_value", "purchase_date", "notes"}
)

const twoBuys = `[{"action":"buy","security_id":1,"quantity":10,"price":100},{"action":"buy","security_id":2,"quantity":5,"price":200}]`

func TestExecuteRebalancing_FailureRollsBack(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM strategies WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(strategyCols).AddRow(1, 1, "Core", 10000.0, 5000.0, "[]", 1700000000))
	mock.ExpectQuery("FROM rebalancing_records").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(recordCols).AddRow(3, "rec-3", 1, twoBuys, 0, nil, 0, nil, 1700000000))
	mock.ExpectQuery("FROM holdings WHERE strategy_id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(holdingCols))
	mock.ExpectExec("INSERT INTO holdings").WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec("INSERT INTO holdings").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	result, err := svc.ExecuteRebalancing(context.Background(), 1)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "disk I/O error")

	// No cash update, no flag flip, no commit
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUndoRebalancing_FailureRollsBack(t *testing.T) {
	svc, mock := newMockService(t)

	executedRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(recordCols).AddRow(3, "rec-3", 1, twoBuys, 1, 1700000000, 0, nil, 1700000000)
	}

	mock.ExpectQuery("FROM rebalancing_records WHERE id").WithArgs(int64(3)).WillReturnRows(executedRow())
	mock.ExpectBegin()
	mock.ExpectQuery("FROM rebalancing_records WHERE id").WithArgs(int64(3)).WillReturnRows(executedRow())
	mock.ExpectQuery("FROM strategies WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(strategyCols).AddRow(1, 1, "Core", 10000.0, 0.0, "[]", 1700000000))
	mock.ExpectQuery("FROM holdings WHERE strategy_id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(holdingCols).
			AddRow(21, 1, 1, nil, 1, 10, 100.0, 1000.0, nil, "").
			AddRow(22, 1, 1, nil, 2, 5, 200.0, 1000.0, nil, ""))
	// Reversed order: security 2 first
	mock.ExpectExec("DELETE FROM holdings").WithArgs(int64(22)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM holdings").WithArgs(int64(21)).WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := svc.UndoRebalancing(context.Background(), 3)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRebalancing_NothingPendingCommitsEmpty(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM strategies WHERE id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(strategyCols).AddRow(1, 1, "Core", 10000.0, 5000.0, "[]", 1700000000))
	mock.ExpectQuery("FROM rebalancing_records").WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(recordCols))
	mock.ExpectCommit()

	result, err := svc.ExecuteRebalancing(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
