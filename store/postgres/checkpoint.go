package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/id"
)

const checkpointColumns = `execution_id, id, graph, graph_version, status, position,
	state_values, state_version, step, error, created_at, updated_at`

// SaveCheckpoint inserts or overwrites the checkpoint of an execution.
// created_at keeps its first value across overwrites.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	args, err := checkpointArgs(cp)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO drafter_checkpoints (`+checkpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (execution_id) DO UPDATE SET
			id = EXCLUDED.id,
			graph = EXCLUDED.graph,
			graph_version = EXCLUDED.graph_version,
			status = EXCLUDED.status,
			position = EXCLUDED.position,
			state_values = EXCLUDED.state_values,
			state_version = EXCLUDED.state_version,
			step = EXCLUDED.step,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("drafter/postgres: save checkpoint: %w", err)
	}
	return nil
}

// CreateCheckpoint inserts the first checkpoint of an execution.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint) error {
	args, err := checkpointArgs(cp)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO drafter_checkpoints (`+checkpointColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (execution_id) DO NOTHING`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("drafter/postgres: create checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return drafter.ErrExecutionExists
	}
	return nil
}

// UpdateCheckpoint overwrites the checkpoint when its step is still
// prevStep. The step test and the write are one statement.
func (s *Store) UpdateCheckpoint(ctx context.Context, cp *checkpoint.Checkpoint, prevStep int64) error {
	args, err := checkpointArgs(cp)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE drafter_checkpoints SET
			id = $2,
			graph = $3,
			graph_version = $4,
			status = $5,
			position = $6,
			state_values = $7,
			state_version = $8,
			step = $9,
			error = $10,
			updated_at = $11
		WHERE execution_id = $1 AND step = $12`,
		append(args[:10:10], cp.UpdatedAt, prevStep)...,
	)
	if err != nil {
		return fmt.Errorf("drafter/postgres: update checkpoint: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM drafter_checkpoints WHERE execution_id = $1)`,
		cp.ExecutionID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("drafter/postgres: update checkpoint: %w", err)
	}
	if !exists {
		return drafter.ErrCheckpointNotFound
	}
	return drafter.ErrCheckpointConflict
}

// checkpointArgs returns the values of checkpointColumns in order.
func checkpointArgs(cp *checkpoint.Checkpoint) ([]any, error) {
	position, err := json.Marshal(cp.Position)
	if err != nil {
		return nil, fmt.Errorf("drafter/postgres: encode position: %w", err)
	}
	values, err := json.Marshal(cp.Values)
	if err != nil {
		return nil, fmt.Errorf("drafter/postgres: encode values: %w", err)
	}
	return []any{
		cp.ExecutionID.String(), cp.ID.String(), cp.Graph, cp.GraphVersion,
		string(cp.Status), position, values, cp.StateVersion, cp.Step, cp.Error,
		cp.CreatedAt, cp.UpdatedAt,
	}, nil
}

// LoadCheckpoint returns the checkpoint of an execution.
func (s *Store) LoadCheckpoint(ctx context.Context, execID id.ExecutionID) (*checkpoint.Checkpoint, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+checkpointColumns+` FROM drafter_checkpoints WHERE execution_id = $1`,
		execID.String(),
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		if isNoRows(err) {
			return nil, drafter.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("drafter/postgres: load checkpoint: %w", err)
	}
	return cp, nil
}

// DeleteCheckpoint removes the checkpoint of an execution.
func (s *Store) DeleteCheckpoint(ctx context.Context, execID id.ExecutionID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM drafter_checkpoints WHERE execution_id = $1`,
		execID.String(),
	)
	if err != nil {
		return fmt.Errorf("drafter/postgres: delete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return drafter.ErrCheckpointNotFound
	}
	return nil
}

// ListCheckpoints returns checkpoints ordered by most recent update.
func (s *Store) ListCheckpoints(ctx context.Context, opts checkpoint.ListOpts) ([]*checkpoint.Checkpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM drafter_checkpoints WHERE TRUE`
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.Graph != "" {
		query += fmt.Sprintf(" AND graph = $%d", argIdx)
		args = append(args, opts.Graph)
		argIdx++
	}
	query += " ORDER BY updated_at DESC, execution_id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("drafter/postgres: list checkpoints: %w", err)
	}
	defer rows.Close()

	out := []*checkpoint.Checkpoint{}
	for rows.Next() {
		cp, scanErr := scanCheckpoint(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("drafter/postgres: scan checkpoint row: %w", scanErr)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("drafter/postgres: iterate checkpoint rows: %w", err)
	}
	return out, nil
}

// DeleteCheckpointsBefore removes checkpoints with the given status last
// updated before the cutoff.
func (s *Store) DeleteCheckpointsBefore(ctx context.Context, status checkpoint.Status, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM drafter_checkpoints WHERE status = $1 AND updated_at < $2`,
		string(status), before,
	)
	if err != nil {
		return 0, fmt.Errorf("drafter/postgres: delete checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanCheckpoint scans a single checkpoint row.
func scanCheckpoint(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		cp        checkpoint.Checkpoint
		execStr   string
		idStr     string
		statusStr string
		position  []byte
		values    []byte
	)
	err := row.Scan(
		&execStr, &idStr, &cp.Graph, &cp.GraphVersion, &statusStr, &position,
		&values, &cp.StateVersion, &cp.Step, &cp.Error, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cp.Status = checkpoint.Status(statusStr)

	if cp.ExecutionID, err = id.ParseExecutionID(execStr); err != nil {
		return nil, fmt.Errorf("parse execution id %q: %w", execStr, err)
	}
	if cp.ID, err = id.ParseCheckpointID(idStr); err != nil {
		return nil, fmt.Errorf("parse checkpoint id %q: %w", idStr, err)
	}
	if err := json.Unmarshal(position, &cp.Position); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	if err := json.Unmarshal(values, &cp.Values); err != nil {
		return nil, fmt.Errorf("decode values: %w", err)
	}
	return &cp, nil
}
