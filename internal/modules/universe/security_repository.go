package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/domain"
)

// securitiesColumns is the list of columns for the securities table
// Used to avoid SELECT * which can break when schema changes
const securitiesColumns = `id, symbol, name, sector, current_price, updated_at`

// SecurityRepository handles security database operations.
// The engine only reads; Upsert and UpdatePrice exist for the price feed.
type SecurityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a new security repository
func NewSecurityRepository(db *sql.DB, log zerolog.Logger) *SecurityRepository {
	return &SecurityRepository{
		db:  db,
		log: log.With().Str("repo", "security").Logger(),
	}
}

// GetByID returns a security by id, or nil if it does not exist
func (r *SecurityRepository) GetByID(ctx context.Context, id int64) (*Security, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+securitiesColumns+" FROM securities WHERE id = ?", id)

	security, err := scanSecurity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get security %d: %w", id, err)
	}
	return &security, nil
}

// GetByIDs returns the securities that exist among ids, keyed by id
func (r *SecurityRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]Security, error) {
	result := make(map[int64]Security, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := "SELECT " + securitiesColumns + " FROM securities WHERE id IN (" + placeholders + ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		security, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		result[security.ID] = security
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return result, nil
}

// GetQuotes implements domain.PriceProvider.
// Securities that are unknown or have no price yet are left out of the result.
func (r *SecurityRepository) GetQuotes(ctx context.Context, securityIDs []int64) (map[int64]domain.Quote, error) {
	securities, err := r.GetByIDs(ctx, securityIDs)
	if err != nil {
		return nil, err
	}

	quotes := make(map[int64]domain.Quote, len(securities))
	for id, security := range securities {
		if !security.HasPrice() {
			continue
		}
		quotes[id] = domain.Quote{
			SecurityID: id,
			Symbol:     security.Symbol,
			Price:      *security.CurrentPrice,
		}
	}

	if missing := len(securityIDs) - len(quotes); missing > 0 {
		r.log.Debug().Int("requested", len(securityIDs)).Int("missing", missing).Msg("Quotes missing for some securities")
	}
	return quotes, nil
}

// Upsert inserts a security or updates its descriptive fields and price
func (r *SecurityRepository) Upsert(ctx context.Context, security Security) error {
	if security.Symbol == "" {
		return fmt.Errorf("security symbol is required")
	}
	if security.CurrentPrice != nil {
		if err := validatePrice(*security.CurrentPrice); err != nil {
			return err
		}
	}

	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO securities (id, symbol, name, sector, current_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			name = excluded.name,
			sector = excluded.sector,
			current_price = excluded.current_price,
			updated_at = excluded.updated_at
	`, security.ID, strings.ToUpper(strings.TrimSpace(security.Symbol)), security.Name, security.Sector,
		nullFloat(security.CurrentPrice), now)
	if err != nil {
		return fmt.Errorf("failed to upsert security %d: %w", security.ID, err)
	}

	r.log.Debug().Int64("security_id", security.ID).Str("symbol", security.Symbol).Msg("Security upserted")
	return nil
}

// UpdatePrice records a new quote for an existing security
func (r *SecurityRepository) UpdatePrice(ctx context.Context, id int64, price float64) error {
	if err := validatePrice(price); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE securities SET current_price = ?, updated_at = ? WHERE id = ?",
		price, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update price for security %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: security %d", domain.ErrNotFound, id)
	}
	return nil
}

// validatePrice rejects anything the calculator could not quantize against.
func validatePrice(price float64) error {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPrice, price)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSecurity(row rowScanner) (Security, error) {
	var security Security
	var price sql.NullFloat64
	var updatedAt sql.NullInt64

	if err := row.Scan(
		&security.ID,
		&security.Symbol,
		&security.Name,
		&security.Sector,
		&price,
		&updatedAt,
	); err != nil {
		return Security{}, err
	}

	if price.Valid {
		p := price.Float64
		security.CurrentPrice = &p
	}
	if updatedAt.Valid {
		ts := updatedAt.Int64
		security.UpdatedAt = &ts
	}
	return security, nil
}

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
