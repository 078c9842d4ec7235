package strategies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
	"github.com/aristath/rebalancer/internal/modules/allocation"
)

const strategiesColumns = `id, user_id, name, total_funds, remaining_cash, portfolio_allocations, created_at`

// Repository handles strategy database operations
type Repository struct {
	q   database.Querier
	log zerolog.Logger
}

// NewRepository creates a new strategy repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		q:   db,
		log: log.With().Str("repo", "strategy").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx, log: r.log}
}

// Create inserts a strategy and returns its id
func (r *Repository) Create(ctx context.Context, s *Strategy) (int64, error) {
	allocs, err := s.Allocations.Encode()
	if err != nil {
		return 0, err
	}

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO strategies (user_id, name, total_funds, remaining_cash, portfolio_allocations, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.UserID, s.Name, s.TotalFunds, s.RemainingCash, allocs, s.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get strategy id: %w", err)
	}
	return id, nil
}

// GetByID returns a strategy or an error wrapping domain.ErrNotFound
func (r *Repository) GetByID(ctx context.Context, id int64) (*Strategy, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+strategiesColumns+" FROM strategies WHERE id = ?", id)

	s, err := scanStrategy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: strategy %d", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy %d: %w", id, err)
	}
	return s, nil
}

// ListByUser returns a user's strategies, oldest first
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Strategy, error) {
	return r.list(ctx, "SELECT "+strategiesColumns+" FROM strategies WHERE user_id = ? ORDER BY id ASC", userID)
}

// ListAll returns every strategy
func (r *Repository) ListAll(ctx context.Context) ([]Strategy, error) {
	return r.list(ctx, "SELECT "+strategiesColumns+" FROM strategies ORDER BY id ASC")
}

// ListReferencingPortfolio returns strategies whose allocation list names the portfolio
func (r *Repository) ListReferencingPortfolio(ctx context.Context, portfolioID int64) ([]Strategy, error) {
	return r.list(ctx, `
		SELECT `+strategiesColumns+` FROM strategies
		WHERE EXISTS (
			SELECT 1 FROM json_each(strategies.portfolio_allocations)
			WHERE json_extract(json_each.value, '$.portfolio_id') = ?
		)
		ORDER BY id ASC
	`, portfolioID)
}

// UpdateDetails overwrites name and total funds. Allocations and cash have
// their own writers so a details edit cannot clobber them.
func (r *Repository) UpdateDetails(ctx context.Context, s *Strategy) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE strategies SET name = ?, total_funds = ? WHERE id = ?",
		s.Name, s.TotalFunds, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update strategy %d: %w", s.ID, err)
	}
	return requireAffected(result, s.ID)
}

// UpdateAllocations overwrites the allocation list only
func (r *Repository) UpdateAllocations(ctx context.Context, id int64, allocs allocation.Allocations) error {
	raw, err := allocs.Encode()
	if err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, "UPDATE strategies SET portfolio_allocations = ? WHERE id = ?", raw, id)
	if err != nil {
		return fmt.Errorf("failed to update allocations of strategy %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// UpdateRemainingCash sets the uninvested cash buffer
func (r *Repository) UpdateRemainingCash(ctx context.Context, id int64, cash float64) error {
	result, err := r.q.ExecContext(ctx, "UPDATE strategies SET remaining_cash = ? WHERE id = ?", cash, id)
	if err != nil {
		return fmt.Errorf("failed to update remaining cash of strategy %d: %w", id, err)
	}
	return requireAffected(result, id)
}

// Delete removes a strategy; holdings, records and snapshots cascade
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, "DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %d: %w", id, err)
	}
	return requireAffected(result, id)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]Strategy, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var result []Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*Strategy, error) {
	var s Strategy
	var rawAllocs string

	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.TotalFunds, &s.RemainingCash, &rawAllocs, &s.CreatedAt); err != nil {
		return nil, err
	}

	allocs, err := allocation.Decode(rawAllocs)
	if err != nil {
		return nil, err
	}
	s.Allocations = allocs
	return &s, nil
}

func requireAffected(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: strategy %d", domain.ErrNotFound, id)
	}
	return nil
}
