package orchestrator

import (
	"context"
	"encoding/json"
	"sync"

	"genjobs/internal/domain"
	"genjobs/internal/providers"
	"genjobs/internal/providers/normalize"
)

// script describes how one provider behaves in a test.
type script struct {
	submitErr error
	immediate *providers.PollResult
	polls     []providers.PollResult
	pollErrs  []error
	// onPoll runs before the n-th (1-based) poll returns.
	onPoll func(n int)
}

type fakeClient struct {
	mu        sync.Mutex
	scripts   map[string]*script
	submits   map[string]int
	polls     map[string]int
	cancelled []string
	payloads  map[string]normalize.Payload
}

func newFakeClient(scripts map[string]*script) *fakeClient {
	return &fakeClient{
		scripts:  scripts,
		submits:  map[string]int{},
		polls:    map[string]int{},
		payloads: map[string]normalize.Payload{},
	}
}

func (f *fakeClient) Submit(_ context.Context, d domain.ProviderDescriptor, payload normalize.Payload) (providers.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits[d.ID]++
	f.payloads[d.ID] = payload
	s := f.scripts[d.ID]
	if s == nil {
		return providers.SubmitResult{}, &domain.ProviderError{Kind: domain.KindProviderUnavailable, ProviderID: d.ID, Detail: "unscripted"}
	}
	if s.submitErr != nil {
		return providers.SubmitResult{}, s.submitErr
	}
	return providers.SubmitResult{JobID: "remote-" + d.ID, Immediate: s.immediate}, nil
}

func (f *fakeClient) Poll(_ context.Context, d domain.ProviderDescriptor, _ string) (providers.PollResult, error) {
	f.mu.Lock()
	f.polls[d.ID]++
	n := f.polls[d.ID]
	s := f.scripts[d.ID]
	f.mu.Unlock()

	if s.onPoll != nil {
		s.onPoll(n)
	}
	if n-1 < len(s.pollErrs) && s.pollErrs[n-1] != nil {
		return providers.PollResult{}, s.pollErrs[n-1]
	}
	if len(s.polls) == 0 {
		return providers.PollResult{Status: providers.StatusRunning}, nil
	}
	i := n - 1
	if i >= len(s.polls) {
		i = len(s.polls) - 1
	}
	return s.polls[i], nil
}

func (f *fakeClient) Cancel(_ context.Context, _ domain.ProviderDescriptor, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return true, nil
}

func (f *fakeClient) submitCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits[id]
}

func (f *fakeClient) totalSubmits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.submits {
		total += n
	}
	return total
}

func succeeded(output string) providers.PollResult {
	return providers.PollResult{Status: providers.StatusSucceeded, Output: json.RawMessage(output)}
}

var (
	queued  = providers.PollResult{Status: providers.StatusQueued}
	running = providers.PollResult{Status: providers.StatusRunning}
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []domain.AttemptRecord
}

func (m *memoryRecorder) Record(_ context.Context, rec domain.AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}
