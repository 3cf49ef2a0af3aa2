package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/state"
)

// Logging returns middleware that logs node start and outcome. A node
// that suspends is logged at info level, not as a failure.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error) {
		attrs := []any{
			slog.String("graph", inv.Graph),
			slog.String("node", inv.Node),
			slog.String("execution_id", inv.ExecutionID.String()),
		}
		logger.Debug("node started", append(attrs, slog.Bool("resumed", inv.Resumed))...)

		start := time.Now()
		u, err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch outcome(err) {
		case "ok":
			logger.Info("node completed", attrs...)
		case "suspended":
			logger.Info("node suspended", attrs...)
		default:
			logger.Error("node failed", append(attrs, slog.String("error", err.Error()))...)
		}
		return u, err
	}
}

// ContextLogger returns middleware that stores a logger carrying the
// invocation attributes in the node context, so node bodies can log with
// drafter.LoggerFromContext.
func ContextLogger(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv graph.Invocation, next Handler) (state.Update, error) {
		l := logger.With(
			slog.String("graph", inv.Graph),
			slog.String("node", inv.Node),
			slog.String("execution_id", inv.ExecutionID.String()),
		)
		return next(drafter.ContextWithLogger(ctx, l))
	}
}
