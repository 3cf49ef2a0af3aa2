// Package middleware provides composable middleware for node execution.
// Middleware wraps node bodies synchronously and can modify execution
// (recover from panics, attach loggers, add tracing, etc.).
package middleware

import (
	"context"

	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
)

// Handler is the terminal function that runs a node body.
type Handler func(ctx context.Context) (state.Update, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the invocation being run, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error) {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (state.Update, error) {
				return mw(ctx, inv, prev)
			}
		}
		return h(ctx)
	}
}

// outcome classifies a node result for logs, spans and metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case graph.IsSuspension(err):
		return "suspended"
	default:
		return "error"
	}
}
