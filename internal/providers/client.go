// Package providers defines the uniform transport contract over remote GPU
// backends and the helpers shared by the concrete clients.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genjobs/internal/domain"
	"genjobs/internal/providers/normalize"
)

// RemoteStatus is a provider job state mapped onto a common vocabulary.
type RemoteStatus string

const (
	StatusQueued    RemoteStatus = "queued"
	StatusRunning   RemoteStatus = "running"
	StatusSucceeded RemoteStatus = "succeeded"
	StatusFailed    RemoteStatus = "failed"
	StatusCancelled RemoteStatus = "cancelled"
	StatusTimedOut  RemoteStatus = "timed_out"
	StatusUnknown   RemoteStatus = "unknown"
)

// IsTerminal reports whether the remote job will not change any more.
func (s RemoteStatus) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// PollResult is one observation of a remote job.
type PollResult struct {
	Status RemoteStatus
	Output json.RawMessage
	Error  string
}

// SubmitResult carries the remote job id and, for synchronous transports
// that already finished, the terminal observation.
type SubmitResult struct {
	JobID     string
	Immediate *PollResult
}

// Client is implemented once per provider family.
type Client interface {
	Submit(ctx context.Context, d domain.ProviderDescriptor, payload normalize.Payload) (SubmitResult, error)
	Poll(ctx context.Context, d domain.ProviderDescriptor, jobID string) (PollResult, error)
	// Cancel is best-effort; false means the provider did not acknowledge.
	Cancel(ctx context.Context, d domain.ProviderDescriptor, jobID string) (bool, error)
}

// SecretSource yields the API key of a family at call time.
type SecretSource interface {
	APIKey(ctx context.Context, family domain.ProviderFamily) (string, error)
}

// Set routes descriptors to the client of their family.
type Set map[domain.ProviderFamily]Client

// For returns the client serving d.
func (s Set) For(d domain.ProviderDescriptor) (Client, error) {
	c, ok := s[d.Family]
	if !ok || c == nil {
		return nil, fmt.Errorf("providers: no client for family %s: %w", d.Family, domain.ErrNotConfigured)
	}
	return c, nil
}

var rejectionMarkers = []string{
	"nsfw",
	"safety",
	"moderation",
	"content policy",
	"flagged",
	"inappropriate",
	"sensitive content",
}

// ClassifyFailure maps a provider-reported failure message onto an error
// kind: content moderation outcomes are terminal, anything else advances.
func ClassifyFailure(message string) domain.ErrorKind {
	lower := strings.ToLower(message)
	for _, marker := range rejectionMarkers {
		if strings.Contains(lower, marker) {
			return domain.KindContentRejected
		}
	}
	return domain.KindProviderUnavailable
}

// ClassifyStatus maps a non-2xx HTTP status onto an error kind.
func ClassifyStatus(code int, body string) domain.ErrorKind {
	switch {
	case code == 400 || code == 422:
		if ClassifyFailure(body) == domain.KindContentRejected {
			return domain.KindContentRejected
		}
		return domain.KindCapabilityMismatch
	default:
		return domain.KindProviderUnavailable
	}
}

// FailedJobError builds the error for a remote job that finished in a
// failure state.
func FailedJobError(d domain.ProviderDescriptor, result PollResult) *domain.ProviderError {
	detail := strings.TrimSpace(result.Error)
	if detail == "" {
		detail = "remote job " + string(result.Status)
	}
	return &domain.ProviderError{Kind: ClassifyFailure(detail), ProviderID: d.ID, Detail: detail}
}

// Truncate shortens provider bodies before they are logged or wrapped.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
