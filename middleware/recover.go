package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv graph.Invocation, next Handler) (u state.Update, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("node panicked",
					slog.String("node", inv.Node),
					slog.String("execution_id", inv.ExecutionID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				u = nil
				retErr = fmt.Errorf("panic in node %s: %v", inv.Node, r)
			}
		}()
		return next(ctx)
	}
}
