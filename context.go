package drafter

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// ContextWithLogger returns a context carrying logger. Node bodies use
// LoggerFromContext to log with the execution attributes the executor
// attached.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext extracts the logger stored by ContextWithLogger, or
// slog.Default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}
