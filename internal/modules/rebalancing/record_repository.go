package rebalancing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/database"
	"github.com/aristath/rebalancer/internal/domain"
)

// HistoryLimit caps the executed records returned by history lookups
const HistoryLimit = 50

const recordColumns = `id, uuid, strategy_id, actions, executed, executed_at, undone, undone_at, created_at`

// RecordRepository persists rebalancing records
type RecordRepository struct {
	q   database.Querier
	log zerolog.Logger
}

// NewRecordRepository creates a new record repository
func NewRecordRepository(db *sql.DB, log zerolog.Logger) *RecordRepository {
	return &RecordRepository{
		q:   db,
		log: log.With().Str("repo", "rebalancing_record").Logger(),
	}
}

// WithTx returns a repository bound to tx
func (r *RecordRepository) WithTx(tx *sql.Tx) *RecordRepository {
	return &RecordRepository{q: tx, log: r.log}
}

// Create stores a pending record. ID and UUID are filled in on rec.
func (r *RecordRepository) Create(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	if rec.UUID == "" {
		rec.UUID = uuid.New().String()
	}

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO rebalancing_records (uuid, strategy_id, actions, executed, undone, created_at)
		VALUES (?, ?, ?, 0, 0, ?)
	`, rec.UUID, rec.StrategyID, string(raw), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rebalancing record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rebalancing record id: %w", err)
	}
	rec.ID = id

	r.log.Debug().Int64("record_id", id).Str("uuid", rec.UUID).Int("actions", len(rec.Actions)).Msg("Rebalancing record created")
	return nil
}

// GetByID returns a record or an error wrapping domain.ErrNotFound
func (r *RecordRepository) GetByID(ctx context.Context, id int64) (*Record, error) {
	return r.getOne(ctx, "SELECT "+recordColumns+" FROM rebalancing_records WHERE id = ?", id)
}

// GetByUUID returns a record by its external reference
func (r *RecordRepository) GetByUUID(ctx context.Context, ref string) (*Record, error) {
	return r.getOne(ctx, "SELECT "+recordColumns+" FROM rebalancing_records WHERE uuid = ?", ref)
}

// LatestPending returns the most recently created pending record, or nil
func (r *RecordRepository) LatestPending(ctx context.Context, strategyID int64) (*Record, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM rebalancing_records
		WHERE strategy_id = ? AND executed = 0
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, strategyID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending rebalancing of strategy %d: %w", strategyID, err)
	}
	return rec, nil
}

// ListExecuted returns executed records (undone ones included), newest first
func (r *RecordRepository) ListExecuted(ctx context.Context, strategyID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM rebalancing_records
		WHERE strategy_id = ? AND executed = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, strategyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalancing history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rebalancing record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebalancing records: %w", err)
	}
	return records, nil
}

// MarkExecuted flips a pending record to executed
func (r *RecordRepository) MarkExecuted(ctx context.Context, id, at int64) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE rebalancing_records SET executed = 1, executed_at = ? WHERE id = ? AND executed = 0", at, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %d executed: %w", id, err)
	}
	return requireTransition(result, id, "executed")
}

// MarkUndone flips an executed record to undone
func (r *RecordRepository) MarkUndone(ctx context.Context, id, at int64) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE rebalancing_records SET undone = 1, undone_at = ? WHERE id = ? AND executed = 1 AND undone = 0", at, id)
	if err != nil {
		return fmt.Errorf("failed to mark record %d undone: %w", id, err)
	}
	return requireTransition(result, id, "undone")
}

func (r *RecordRepository) getOne(ctx context.Context, query string, arg interface{}) (*Record, error) {
	rec, err := scanRecord(r.q.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: rebalancing record %v", domain.ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rebalancing record %v: %w", arg, err)
	}
	return rec, nil
}

func requireTransition(result sql.Result, id int64, to string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: record %d cannot become %s", domain.ErrInvalidState, id, to)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var rawActions string
	var executedAt, undoneAt sql.NullInt64

	err := row.Scan(&rec.ID, &rec.UUID, &rec.StrategyID, &rawActions,
		&rec.Executed, &executedAt, &rec.Undone, &undoneAt, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rawActions), &rec.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions of record %d: %w", rec.ID, err)
	}
	if rec.Actions == nil {
		rec.Actions = []Action{}
	}
	if executedAt.Valid {
		rec.ExecutedAt = &executedAt.Int64
	}
	if undoneAt.Valid {
		rec.UndoneAt = &undoneAt.Int64
	}
	return &rec, nil
}
