package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/drafter/checkpoint"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	executionStarted   []entry[ExecutionStarted]
	nodeCompleted      []entry[NodeCompleted]
	nodeFailed         []entry[NodeFailed]
	executionSuspended []entry[ExecutionSuspended]
	executionResumed   []entry[ExecutionResumed]
	executionCompleted []entry[ExecutionCompleted]
	executionFailed    []entry[ExecutionFailed]
	checkpointsSwept   []entry[CheckpointsSwept]
	shutdown           []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ExecutionStarted); ok {
		r.executionStarted = append(r.executionStarted, entry[ExecutionStarted]{name, h})
	}
	if h, ok := e.(NodeCompleted); ok {
		r.nodeCompleted = append(r.nodeCompleted, entry[NodeCompleted]{name, h})
	}
	if h, ok := e.(NodeFailed); ok {
		r.nodeFailed = append(r.nodeFailed, entry[NodeFailed]{name, h})
	}
	if h, ok := e.(ExecutionSuspended); ok {
		r.executionSuspended = append(r.executionSuspended, entry[ExecutionSuspended]{name, h})
	}
	if h, ok := e.(ExecutionResumed); ok {
		r.executionResumed = append(r.executionResumed, entry[ExecutionResumed]{name, h})
	}
	if h, ok := e.(ExecutionCompleted); ok {
		r.executionCompleted = append(r.executionCompleted, entry[ExecutionCompleted]{name, h})
	}
	if h, ok := e.(ExecutionFailed); ok {
		r.executionFailed = append(r.executionFailed, entry[ExecutionFailed]{name, h})
	}
	if h, ok := e.(CheckpointsSwept); ok {
		r.checkpointsSwept = append(r.checkpointsSwept, entry[CheckpointsSwept]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitExecutionStarted notifies all extensions that implement ExecutionStarted.
func (r *Registry) EmitExecutionStarted(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.executionStarted {
		if err := e.hook.OnExecutionStarted(ctx, cp); err != nil {
			r.logHookError("OnExecutionStarted", e.name, err)
		}
	}
}

// EmitNodeCompleted notifies all extensions that implement NodeCompleted.
func (r *Registry) EmitNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration) {
	for _, e := range r.nodeCompleted {
		if err := e.hook.OnNodeCompleted(ctx, cp, node, elapsed); err != nil {
			r.logHookError("OnNodeCompleted", e.name, err)
		}
	}
}

// EmitNodeFailed notifies all extensions that implement NodeFailed.
func (r *Registry) EmitNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, nodeErr error) {
	for _, e := range r.nodeFailed {
		if err := e.hook.OnNodeFailed(ctx, cp, node, nodeErr); err != nil {
			r.logHookError("OnNodeFailed", e.name, err)
		}
	}
}

// EmitExecutionSuspended notifies all extensions that implement ExecutionSuspended.
func (r *Registry) EmitExecutionSuspended(ctx context.Context, cp *checkpoint.Checkpoint) {
	for _, e := range r.executionSuspended {
		if err := e.hook.OnExecutionSuspended(ctx, cp); err != nil {
			r.logHookError("OnExecutionSuspended", e.name, err)
		}
	}
}

// EmitExecutionResumed notifies all extensions that implement ExecutionResumed.
func (r *Registry) EmitExecutionResumed(ctx context.Context, cp *checkpoint.Checkpoint, node string, value any) {
	for _, e := range r.executionResumed {
		if err := e.hook.OnExecutionResumed(ctx, cp, node, value); err != nil {
			r.logHookError("OnExecutionResumed", e.name, err)
		}
	}
}

// EmitExecutionCompleted notifies all extensions that implement ExecutionCompleted.
func (r *Registry) EmitExecutionCompleted(ctx context.Context, cp *checkpoint.Checkpoint, elapsed time.Duration) {
	for _, e := range r.executionCompleted {
		if err := e.hook.OnExecutionCompleted(ctx, cp, elapsed); err != nil {
			r.logHookError("OnExecutionCompleted", e.name, err)
		}
	}
}

// EmitExecutionFailed notifies all extensions that implement ExecutionFailed.
func (r *Registry) EmitExecutionFailed(ctx context.Context, cp *checkpoint.Checkpoint, execErr error) {
	for _, e := range r.executionFailed {
		if err := e.hook.OnExecutionFailed(ctx, cp, execErr); err != nil {
			r.logHookError("OnExecutionFailed", e.name, err)
		}
	}
}

// EmitCheckpointsSwept notifies all extensions that implement CheckpointsSwept.
func (r *Registry) EmitCheckpointsSwept(ctx context.Context, status checkpoint.Status, count int64) {
	for _, e := range r.checkpointsSwept {
		if err := e.hook.OnCheckpointsSwept(ctx, status, count); err != nil {
			r.logHookError("OnCheckpointsSwept", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
