package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
)

// Timeout returns middleware that enforces the per-node deadline the
// executor resolved into the invocation. When the deadline is exceeded the
// context is cancelled and the node should return context.DeadlineExceeded.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error) {
		if inv.Timeout > 0 {
			logger.Debug("node timeout set",
				slog.String("node", inv.Node),
				slog.String("execution_id", inv.ExecutionID.String()),
				slog.Duration("timeout", inv.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
