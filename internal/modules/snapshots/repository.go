package snapshots

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultListLimit is the number of snapshots returned by ListRecent when no limit is given
const DefaultListLimit = 30

// Repository handles snapshot database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshot").Logger(),
	}
}

// Create inserts a snapshot and returns its id
func (r *Repository) Create(ctx context.Context, s Snapshot) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO strategy_snapshots (strategy_id, total_value, performance_percentage, snapshot_date)
		VALUES (?, ?, ?, ?)
	`, s.StrategyID, s.TotalValue, s.PerformancePercentage, s.SnapshotDate)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get snapshot id: %w", err)
	}
	return id, nil
}

// ListRecent returns a strategy's snapshots, newest first
func (r *Repository) ListRecent(ctx context.Context, strategyID int64, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, strategy_id, total_value, performance_percentage, snapshot_date
		FROM strategy_snapshots
		WHERE strategy_id = ?
		ORDER BY snapshot_date DESC, id DESC
		LIMIT ?
	`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	result := make([]Snapshot, 0)
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.TotalValue, &s.PerformancePercentage, &s.SnapshotDate); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return result, nil
}
