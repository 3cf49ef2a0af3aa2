// Package checkpoint defines the persisted position of an execution and
// the store contract backends implement.
//
// There is exactly one checkpoint per execution id. Every save overwrites
// the previous one, so a checkpoint always reflects the last merged state.
package checkpoint

import (
	"context"
	"slices"
	"time"

	"github.com/xraph/drafter/id"
)

// Status is the lifecycle state of an execution as seen by its checkpoint.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSuspended Status = "suspended"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further resume is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Suspended records the node waiting for external input.
type Suspended struct {
	Node string `json:"node" msgpack:"node"`

	// Payload is the value the node handed to the caller.
	Payload any `json:"payload" msgpack:"payload"`

	// Resumes are the resume values already supplied to this node in
	// earlier rounds; a node with several interrupt points collects one per
	// round.
	Resumes []any `json:"resumes,omitempty" msgpack:"resumes,omitempty"`
}

// Position is the scheduler position: which nodes finished and which are
// ready to run.
type Position struct {
	Completed []string   `json:"completed" msgpack:"completed"`
	Pending   []string   `json:"pending" msgpack:"pending"`
	Suspended *Suspended `json:"suspended,omitempty" msgpack:"suspended,omitempty"`
}

// Clone returns a deep copy of p. Payload and resume values are shared;
// they are treated as immutable once recorded.
func (p Position) Clone() Position {
	out := Position{
		Completed: slices.Clone(p.Completed),
		Pending:   slices.Clone(p.Pending),
	}
	if p.Suspended != nil {
		s := *p.Suspended
		s.Resumes = slices.Clone(s.Resumes)
		out.Suspended = &s
	}
	return out
}

// Checkpoint is the persisted snapshot of one execution.
type Checkpoint struct {
	ID           id.CheckpointID `json:"id"`
	ExecutionID  id.ExecutionID  `json:"execution_id"`
	Graph        string          `json:"graph"`
	GraphVersion int             `json:"graph_version"`
	Status       Status          `json:"status"`
	Position     Position        `json:"position"`

	// Values is the state snapshot in its JSON form.
	Values map[string]any `json:"values"`

	// StateVersion is the state version the snapshot was taken at.
	StateVersion int64 `json:"state_version"`

	// Step counts saves of this checkpoint.
	Step int64 `json:"step"`

	// Error is the failure text when Status is failed.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListOpts controls checkpoint listing.
type ListOpts struct {
	// Status filters by status. Empty means all.
	Status Status
	// Graph filters by graph name. Empty means all.
	Graph string
	// Limit is the maximum number of checkpoints to return. Zero means no limit.
	Limit int
	// Offset is the number of checkpoints to skip.
	Offset int
}

// Store defines the persistence contract for checkpoints.
type Store interface {
	// SaveCheckpoint inserts or overwrites the checkpoint of
	// cp.ExecutionID unconditionally.
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error

	// CreateCheckpoint stores the first checkpoint of cp.ExecutionID. It
	// returns drafter.ErrExecutionExists when one is already stored.
	CreateCheckpoint(ctx context.Context, cp *Checkpoint) error

	// UpdateCheckpoint overwrites the checkpoint of cp.ExecutionID only if
	// the stored Step equals prevStep. A different step returns
	// drafter.ErrCheckpointConflict; a missing checkpoint returns
	// drafter.ErrCheckpointNotFound. The check and the write are atomic,
	// so of two writers starting from the same step exactly one wins.
	UpdateCheckpoint(ctx context.Context, cp *Checkpoint, prevStep int64) error

	// LoadCheckpoint returns the checkpoint of an execution, or
	// drafter.ErrCheckpointNotFound.
	LoadCheckpoint(ctx context.Context, execID id.ExecutionID) (*Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint of an execution. Deleting a
	// missing checkpoint returns drafter.ErrCheckpointNotFound.
	DeleteCheckpoint(ctx context.Context, execID id.ExecutionID) error

	// ListCheckpoints returns checkpoints ordered by most recent update.
	ListCheckpoints(ctx context.Context, opts ListOpts) ([]*Checkpoint, error)

	// DeleteCheckpointsBefore removes checkpoints with the given status
	// last updated before the cutoff and returns how many were removed.
	DeleteCheckpointsBefore(ctx context.Context, status Status, before time.Time) (int64, error)
}
