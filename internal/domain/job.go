package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// Job is one attempt of a GenerationRequest against a single provider. A new
// Job is created for every fallback attempt.
type Job struct {
	ID           string
	RemoteID     string
	ProviderID   string
	Kind         MediaKind
	AttemptIndex int
	SubmittedAt  time.Time
	FinishedAt   time.Time
	Status       JobStatus
	RawOutput    json.RawMessage
	Err          error
}

// NewJob creates a queued job for the given attempt.
func NewJob(id, providerID string, kind MediaKind, attempt int, now time.Time) *Job {
	return &Job{
		ID:           id,
		ProviderID:   providerID,
		Kind:         kind,
		AttemptIndex: attempt,
		SubmittedAt:  now,
		Status:       JobStatusQueued,
	}
}

// Transition moves the job to status. Once terminal the job never changes
// again; the return value reports whether the transition was applied.
func (j *Job) Transition(status JobStatus, at time.Time, output json.RawMessage, err error) bool {
	if j.Status.IsTerminal() {
		return false
	}
	if status == JobStatusQueued && j.Status == JobStatusRunning {
		return false
	}
	j.Status = status
	if !status.IsTerminal() {
		return true
	}
	j.FinishedAt = at
	if status == JobStatusSucceeded {
		j.RawOutput = append(json.RawMessage(nil), output...)
	}
	if status == JobStatusFailed || status == JobStatusTimedOut {
		j.Err = err
	}
	return true
}

// Elapsed returns how long the job has been outstanding at now.
func (j *Job) Elapsed(now time.Time) time.Duration {
	return now.Sub(j.SubmittedAt)
}

// AttemptRecord is the persisted diagnostic trace of one Job.
type AttemptRecord struct {
	ID        string `bson:"_id" json:"id"`
	RequestID string `bson:"request_id" json:"request_id"`
	// CorrelationID is the caller-supplied X-Request-ID, kept apart from
	// RequestID so clients reusing a header value never share history.
	CorrelationID string    `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	CallerID      string    `bson:"caller_id" json:"caller_id"`
	ProviderID    string    `bson:"provider_id" json:"provider_id"`
	Kind          MediaKind `bson:"kind" json:"kind"`
	AttemptIndex  int       `bson:"attempt_index" json:"attempt_index"`
	RemoteID      string    `bson:"remote_id,omitempty" json:"remote_id,omitempty"`
	Status        JobStatus `bson:"status" json:"status"`
	FailureKind   ErrorKind `bson:"failure_kind,omitempty" json:"failure_kind,omitempty"`
	ErrorDetail   string    `bson:"error_detail,omitempty" json:"-"`
	SubmittedAt   time.Time `bson:"submitted_at" json:"submitted_at"`
	FinishedAt    time.Time `bson:"finished_at" json:"finished_at"`
}
