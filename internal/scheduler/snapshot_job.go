package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/rebalancer/internal/events"
	"github.com/aristath/rebalancer/internal/modules/strategies"
)

// StrategyRevaluer lists strategies and refreshes their holding values
type StrategyRevaluer interface {
	ListAll(ctx context.Context) ([]strategies.Strategy, error)
	Revalue(ctx context.Context, id int64) (int, error)
}

// SnapshotTaker records a performance snapshot of one strategy
type SnapshotTaker interface {
	CreateSnapshot(ctx context.Context, strategyID int64) error
}

// SnapshotJob revalues every strategy at current prices and records a snapshot.
// A failing strategy is logged and skipped; the run fails only when no
// strategy could be snapshotted.
type SnapshotJob struct {
	strategies StrategyRevaluer
	snapshots  SnapshotTaker
	emitter    events.Emitter
	timeout    time.Duration
	log        zerolog.Logger
}

// NewSnapshotJob creates a new SnapshotJob
func NewSnapshotJob(strategies StrategyRevaluer, snapshots SnapshotTaker, emitter events.Emitter, log zerolog.Logger) *SnapshotJob {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return &SnapshotJob{
		strategies: strategies,
		snapshots:  snapshots,
		emitter:    emitter,
		timeout:    5 * time.Minute,
		log:        log.With().Str("job", "strategy_snapshots").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "strategy_snapshots"
}

// Run executes the snapshot job
func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	all, err := j.strategies.ListAll(ctx)
	if err != nil {
		return err
	}

	taken, failed := 0, 0
	var lastErr error
	for _, s := range all {
		if _, err := j.strategies.Revalue(ctx, s.ID); err != nil {
			j.log.Warn().Err(err).Int64("strategy_id", s.ID).Msg("Failed to revalue strategy")
			failed++
			lastErr = err
			continue
		}
		if err := j.snapshots.CreateSnapshot(ctx, s.ID); err != nil {
			j.log.Warn().Err(err).Int64("strategy_id", s.ID).Msg("Failed to snapshot strategy")
			failed++
			lastErr = err
			continue
		}
		taken++
	}

	j.log.Info().Int("taken", taken).Int("failed", failed).Msg("Strategy snapshots completed")
	j.emitter.EmitTyped(events.SnapshotsTaken, "scheduler", &events.SnapshotsTakenData{
		Strategies: taken,
		Failed:     failed,
	})

	if taken == 0 && failed > 0 {
		return lastErr
	}
	return nil
}
