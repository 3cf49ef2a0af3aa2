package ext

import (
	"context"
	"time"

	"github.com/xraph/drafter/checkpoint"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ExecutionStarted is called after the first checkpoint of a new
// execution is saved.
type ExecutionStarted interface {
	OnExecutionStarted(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// NodeCompleted is called after a node's update is merged and
// checkpointed.
type NodeCompleted interface {
	OnNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) error
}

// NodeFailed is called when a node returns an error other than a
// suspension.
type NodeFailed interface {
	OnNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, err error) error
}

// ExecutionSuspended is called after a suspension is checkpointed.
// cp.Position.Suspended carries the node and its payload.
type ExecutionSuspended interface {
	OnExecutionSuspended(ctx context.Context, cp *checkpoint.Checkpoint) error
}

// ExecutionResumed is called when a suspended execution is resumed, before
// the suspended node runs again.
type ExecutionResumed interface {
	OnExecutionResumed(ctx context.Context, cp *checkpoint.Checkpoint, node string, value any) error
}

// ExecutionCompleted is called after the terminal node completes.
type ExecutionCompleted interface {
	OnExecutionCompleted(ctx context.Context, cp *checkpoint.Checkpoint, elapsed time.Duration) error
}

// ExecutionFailed is called after a failed execution is checkpointed.
type ExecutionFailed interface {
	OnExecutionFailed(ctx context.Context, cp *checkpoint.Checkpoint, err error) error
}

// CheckpointsSwept is called when the retention sweeper deletes expired
// checkpoints of one status.
type CheckpointsSwept interface {
	OnCheckpointsSwept(ctx context.Context, status checkpoint.Status, count int64) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
