package orchestrator

import (
	"context"

	"genjobs/internal/domain"
)

// AttemptRecorder receives one record per finished attempt.
type AttemptRecorder interface {
	Record(ctx context.Context, rec domain.AttemptRecord) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, domain.AttemptRecord) error { return nil }

type requestIDKey struct{}

// WithRequestID tags ctx so attempt records can be correlated with the
// inbound request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id set by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type correlationIDKey struct{}

// WithCorrelationID carries a client-chosen id into attempt records. It is
// stored as-is and never used to group attempts.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFrom returns the id set by WithCorrelationID.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
