package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/middleware"
)

// Emitter receives execution lifecycle events.
// It is satisfied by *ext.Registry; the executor only depends on this
// interface so ext can stay a leaf package.
type Emitter interface {
	EmitExecutionStarted(ctx context.Context, cp *checkpoint.Checkpoint)
	EmitNodeCompleted(ctx context.Context, cp *checkpoint.Checkpoint, node string, elapsed time.Duration)
	EmitNodeFailed(ctx context.Context, cp *checkpoint.Checkpoint, node string, err error)
	EmitExecutionSuspended(ctx context.Context, cp *checkpoint.Checkpoint)
	EmitExecutionResumed(ctx context.Context, cp *checkpoint.Checkpoint, node string, value any)
	EmitExecutionCompleted(ctx context.Context, cp *checkpoint.Checkpoint, elapsed time.Duration)
	EmitExecutionFailed(ctx context.Context, cp *checkpoint.Checkpoint, err error)
}

type nopEmitter struct{}

func (nopEmitter) EmitExecutionStarted(context.Context, *checkpoint.Checkpoint) {}
func (nopEmitter) EmitNodeCompleted(context.Context, *checkpoint.Checkpoint, string, time.Duration) {
}
func (nopEmitter) EmitNodeFailed(context.Context, *checkpoint.Checkpoint, string, error)    {}
func (nopEmitter) EmitExecutionSuspended(context.Context, *checkpoint.Checkpoint)           {}
func (nopEmitter) EmitExecutionResumed(context.Context, *checkpoint.Checkpoint, string, any) {}
func (nopEmitter) EmitExecutionCompleted(context.Context, *checkpoint.Checkpoint, time.Duration) {
}
func (nopEmitter) EmitExecutionFailed(context.Context, *checkpoint.Checkpoint, error) {}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(em Emitter) Option {
	return func(e *Executor) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithMiddleware appends middleware around every node body. They run
// outside the built-in recover and timeout middleware.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Executor) { e.middleware = append(e.middleware, mws...) }
}

// WithConcurrency caps the number of node bodies running at once within
// one execution. Zero or less means no cap.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// WithNodeTimeout sets the deadline of nodes that do not declare their own.
// Zero disables it.
func WithNodeTimeout(d time.Duration) Option {
	return func(e *Executor) { e.nodeTimeout = d }
}

// WithClock overrides the checkpoint timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}
