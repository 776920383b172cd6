package domain

import "context"

// AttemptRepository persists per-attempt diagnostics.
type AttemptRepository interface {
	Record(ctx context.Context, rec AttemptRecord) error
	ListByRequest(ctx context.Context, requestID string) ([]AttemptRecord, error)
}
