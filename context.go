package workflow

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	LoggerContextKey      ContextKey = "logger"
	ExecutionIDContextKey ContextKey = "execution_id"
)

// WithLogger returns a context carrying logger. Tools invoked by the engine
// receive a context with the node's logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// WithExecutionID returns a context carrying the id of the running execution.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ExecutionIDContextKey, executionID)
}

// LoggerFromContext returns the logger in ctx, or slog.Default().
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// ExecutionIDFromContext returns the id of the running execution, if any.
func ExecutionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ExecutionIDContextKey).(string)
	return id, ok
}
