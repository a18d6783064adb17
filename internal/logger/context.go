package logger

import (
	"context"

	"go.uber.org/zap"
)

type loggerKey struct{}

// ContextWithLogger returns a context carrying the given logger, typically
// one annotated with the request ID by the request middleware.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger carried by the context, or a no-op logger
// when none was attached (background jobs, tests).
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
