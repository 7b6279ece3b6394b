package telemetry

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const correlationKey ctxKey = iota

// NewCorrelationID returns a fresh id for tying log lines, spans, and
// responses of one request or job run together.
func NewCorrelationID() string { return uuid.NewString() }

// WithCorrelation attaches a correlation id to the context.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// GetCorrelation returns the correlation id, or "" when none is attached.
func GetCorrelation(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey).(string); ok {
		return id
	}
	return ""
}
