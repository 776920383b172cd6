package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotConfigured  = errors.New("provider not configured")
)

// ErrorKind is the machine-readable classification of an orchestration failure.
type ErrorKind string

const (
	KindAdmissionDenied     ErrorKind = "AdmissionDenied"
	KindCapabilityMismatch  ErrorKind = "CapabilityMismatch"
	KindProviderUnavailable ErrorKind = "ProviderUnavailable"
	KindContentRejected     ErrorKind = "ContentRejected"
	KindTimedOut            ErrorKind = "TimedOut"
	KindExhausted           ErrorKind = "Exhausted"
	KindCancelled           ErrorKind = "Cancelled"
	KindInvalidRequest      ErrorKind = "InvalidRequest"
)

// Advances reports whether a failure of this kind lets the fallback chain
// move on to the next candidate provider.
func (k ErrorKind) Advances() bool {
	switch k {
	case KindProviderUnavailable, KindCapabilityMismatch, KindTimedOut:
		return true
	default:
		return false
	}
}

// ProviderError is a classified failure of a single provider attempt. Detail
// carries the raw provider message and is only ever logged.
type ProviderError struct {
	Kind       ErrorKind
	ProviderID string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	if e.ProviderID != "" {
		b.WriteString(" (")
		b.WriteString(e.ProviderID)
		b.WriteString(")")
	}
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a classified provider error.
func NewProviderError(kind ErrorKind, providerID string, err error) *ProviderError {
	return &ProviderError{Kind: kind, ProviderID: providerID, Err: err}
}

// KindOf extracts the classification of err. Unclassified errors are treated
// as provider unavailability.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	if errors.Is(err, ErrInvalidRequest) {
		return KindInvalidRequest
	}
	return KindProviderUnavailable
}

// AttemptFailure summarises why one attempt did not produce a result.
type AttemptFailure struct {
	ProviderID   string    `json:"provider_id"`
	AttemptIndex int       `json:"attempt_index"`
	Kind         ErrorKind `json:"kind"`
}

// OrchestrationError is the only error type returned to callers of Generate.
type OrchestrationError struct {
	Kind              ErrorKind        `json:"kind"`
	Message           string           `json:"message"`
	RetryAfterSeconds int              `json:"retry_after_seconds,omitempty"`
	Attempts          []AttemptFailure `json:"attempts,omitempty"`
	cause             error
}

// NewOrchestrationError builds a caller-visible error.
func NewOrchestrationError(kind ErrorKind, message string, cause error) *OrchestrationError {
	return &OrchestrationError{Kind: kind, Message: message, cause: cause}
}

func (e *OrchestrationError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("#%d %s=%s", a.AttemptIndex, a.ProviderID, a.Kind))
	}
	return fmt.Sprintf("%s: %s [%s]", e.Kind, e.Message, strings.Join(parts, ", "))
}

func (e *OrchestrationError) Unwrap() error {
	return e.cause
}

// Is matches another OrchestrationError by kind so callers can write
// errors.Is(err, &domain.OrchestrationError{Kind: domain.KindExhausted}).
func (e *OrchestrationError) Is(target error) bool {
	var t *OrchestrationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}
