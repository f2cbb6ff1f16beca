package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext stores logger on the context.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the context logger, falling back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithFlowID attaches a flow identifier to the context logger so every log
// line for one signup/OAuth round-trip can be correlated.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	return WithContext(ctx, FromContext(ctx).With("flow_id", flowID))
}
