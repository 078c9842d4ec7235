package portfolio

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
)

const holdingsColumns = `id, user_id, strategy_id, portfolio_id, security_id, quantity,
average_price, current_value, purchase_date, notes`

// HoldingRepository handles holding database operations.
// Use WithTx to run the same operations inside a transaction.
type HoldingRepository struct {
	q   database.Querier
	log zerolog.Logger
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *sql.DB, log zerolog.Logger) *HoldingRepository {
	return &HoldingRepository{
		q:   db,
		log: log.With().Str("repo", "holding").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *HoldingRepository) WithTx(tx *sql.Tx) *HoldingRepository {
	return &HoldingRepository{q: tx, log: r.log}
}

// ListByStrategy returns every holding row of a strategy ordered by id
func (r *HoldingRepository) ListByStrategy(ctx context.Context, strategyID int64) ([]Holding, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+holdingsColumns+" FROM holdings WHERE strategy_id = ? ORDER BY id ASC", strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return holdings, nil
}

// Create inserts a holding and returns its id
func (r *HoldingRepository) Create(ctx context.Context, h Holding) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		INSERT INTO holdings (user_id, strategy_id, portfolio_id, security_id, quantity,
			average_price, current_value, purchase_date, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.UserID, nullInt64(h.StrategyID), nullInt64(h.PortfolioID), h.SecurityID, h.Quantity,
		h.AveragePrice, h.CurrentValue, nullInt64(h.PurchaseDate), h.Notes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert holding for security %d: %w", h.SecurityID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get holding id: %w", err)
	}
	return id, nil
}

// UpdatePosition overwrites quantity, cost basis and value of one row
func (r *HoldingRepository) UpdatePosition(ctx context.Context, id, quantity int64, averagePrice, currentValue float64) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE holdings SET quantity = ?, average_price = ?, current_value = ? WHERE id = ?",
		quantity, averagePrice, currentValue, id)
	if err != nil {
		return fmt.Errorf("failed to update holding %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// UpdateCurrentValue sets the market value of one row
func (r *HoldingRepository) UpdateCurrentValue(ctx context.Context, id int64, currentValue float64) error {
	result, err := r.q.ExecContext(ctx, "UPDATE holdings SET current_value = ? WHERE id = ?", currentValue, id)
	if err != nil {
		return fmt.Errorf("failed to update value of holding %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// Delete removes one row
func (r *HoldingRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM holdings WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete holding %d: %w", id, err)
	}
	return requireAffected(result, id)
}

func requireAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: holding %d", domain.ErrNotFound, id)
	}
	return nil
}

func scanHolding(rows *sql.Rows) (Holding, error) {
	var h Holding
	var strategyID, portfolioID, purchaseDate sql.NullInt64

	if err := rows.Scan(
		&h.ID,
		&h.UserID,
		&strategyID,
		&portfolioID,
		&h.SecurityID,
		&h.Quantity,
		&h.AveragePrice,
		&h.CurrentValue,
		&purchaseDate,
		&h.Notes,
	); err != nil {
		return Holding{}, err
	}

	h.StrategyID = int64Ptr(strategyID)
	h.PortfolioID = int64Ptr(portfolioID)
	h.PurchaseDate = int64Ptr(purchaseDate)
	return h, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	x := v.Int64
	return &x
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
