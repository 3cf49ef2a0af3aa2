package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

// SaveCheckpoint inserts or overwrites the checkpoint of an execution.
// created_at keeps its first value across overwrites.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (execution_id) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("graph = EXCLUDED.graph").
		Set("graph_version = EXCLUDED.graph_version").
		Set("status = EXCLUDED.status").
		Set("position = EXCLUDED.position").
		Set("state_values = EXCLUDED.state_values").
		Set("state_version = EXCLUDED.state_version").
		Set("step = EXCLUDED.step").
		Set("error = EXCLUDED.error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("drafter/bun: save checkpoint: %w", err)
	}
	return nil
}

// CreateCheckpoint inserts the first checkpoint of an execution.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	res, err := s.db.NewInsert().Model(m).
		On("CONFLICT (execution_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("drafter/bun: create checkpoint: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 { //nolint:errcheck // driver always returns nil
		return drafter.ErrExecutionExists
	}
	return nil
}

// UpdateCheckpoint overwrites the checkpoint when its step is still
// prevStep.
func (s *Store) UpdateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, prevStep int64) error {
	m, err := toCheckpointModel(cp)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model(m).
		Column("id", "graph", "graph_version", "status", "position",
			"state_values", "state_version", "step", "error", "updated_at").
		Where("execution_id = ?", m.ExecutionID).
		Where("step = ?", prevStep).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("drafter/bun: update checkpoint: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows > 0 { //nolint:errcheck // driver always returns nil
		return nil
	}

	exists, err := s.db.NewSelect().
		TableExpr("drafter_checkpoints").
		Where("execution_id = ?", m.ExecutionID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("drafter/bun: update checkpoint: %w", err)
	}
	if !exists {
		return drafter.ErrCheckpointNotFound
	}
	return drafter.ErrCheckpointConflict
}

// LoadCheckpoint returns the checkpoint of an execution.
func (s *Store) LoadCheckpoint(ctx context.Context, execID id.ExecutionID) (*checkpoint.Checkpoint, error) {
	m := new(checkpointModel)
	err := s.db.NewSelect().Model(m).
		Where("execution_id = ?", execID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, drafter.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("drafter/bun: load checkpoint: %w", err)
	}
	return fromCheckpointModel(m)
}

// DeleteCheckpoint removes the checkpoint of an execution.
func (s *Store) DeleteCheckpoint(ctx context.Context, execID id.ExecutionID) error {
	res, err := s.db.NewDelete().
		TableExpr("drafter_checkpoints").
		Where("execution_id = ?", execID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("drafter/bun: delete checkpoint: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return drafter.ErrCheckpointNotFound
	}
	return nil
}

// ListCheckpoints returns checkpoints ordered by most recent update.
func (s *Store) ListCheckpoints(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	var models []checkpointModel
	q := s.db.NewSelect().Model(&models)
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Graph != "" {
		q = q.Where("graph = ?", opts.Graph)
	}
	q = q.OrderExpr("updated_at DESC, execution_id ASC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("drafter/bun: list checkpoints: %w", err)
	}

	out := make([]*checkpoint.Checkpoint, 0, len(models))
	for i := range models {
		cp, err := fromCheckpointModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// DeleteCheckpointsBefore removes checkpoints with the given status last
// updated before the cutoff.
func (s *Store) DeleteCheckpointsBefore(ctx context.Context, status checkpoint.Status, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		TableExpr("drafter_checkpoints").
		Where("status = ?", string(status)).
		Where("updated_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("drafter/bun: delete checkpoints: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return rows, nil
}
