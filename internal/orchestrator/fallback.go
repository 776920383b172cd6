package orchestrator

import (
	"genjobs/internal/domain"
)

// Catalogue is the read side of the provider registry the orchestrator needs.
type Catalogue interface {
	Descriptor(id string) (domain.ProviderDescriptor, bool)
	IsConfigured(id string) bool
	DefaultOrder(kind domain.MediaKind) []string
	All() []domain.ProviderDescriptor
}

// ResolveCandidates returns the ordered providers to try for req: the
// caller's preferred order when given, else the default order for the kind.
// Unknown, unconfigured and repeated ids are dropped.
func ResolveCandidates(c Catalogue, req domain.GenerationRequest) []domain.ProviderDescriptor {
	ids := req.PreferredProviderOrder
	if len(ids) == 0 {
		ids = c.DefaultOrder(req.Kind)
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]domain.ProviderDescriptor, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !c.IsConfigured(id) {
			continue
		}
		d, ok := c.Descriptor(id)
		if !ok {
			continue
		}
		out = append(out, d)
	}
	return out
}

// KindMismatches classifies every configured provider that cannot serve kind
// as a CapabilityMismatch, in catalogue order. It is used when no candidate
// supports the kind at all, so the caller still sees why nothing ran.
func KindMismatches(c Catalogue, kind domain.MediaKind) []domain.AttemptFailure {
	var out []domain.AttemptFailure
	for _, d := range c.All() {
		if !d.Configured || d.Supports(kind) {
			continue
		}
		out = append(out, domain.AttemptFailure{
			ProviderID:   d.ID,
			AttemptIndex: len(out),
			Kind:         domain.KindCapabilityMismatch,
		})
	}
	return out
}

// Chain walks the candidate list and keeps the failure history.
type Chain struct {
	candidates []domain.ProviderDescriptor
	pos        int
	failures   []domain.AttemptFailure
}

// NewChain starts at the first candidate.
func NewChain(candidates []domain.ProviderDescriptor) *Chain {
	return &Chain{candidates: candidates}
}

// Current returns the provider for the current attempt.
func (c *Chain) Current() (domain.ProviderDescriptor, bool) {
	if c.pos >= len(c.candidates) {
		return domain.ProviderDescriptor{}, false
	}
	return c.candidates[c.pos], true
}

// Attempt is the zero-based index of the current attempt.
func (c *Chain) Attempt() int {
	return c.pos
}

// Advance records failure against the current provider and moves to the
// next one. It returns false when the failure kind is terminal or no
// candidate remains.
func (c *Chain) Advance(failure error) (domain.ProviderDescriptor, bool) {
	current, ok := c.Current()
	if !ok {
		return domain.ProviderDescriptor{}, false
	}
	kind := domain.KindOf(failure)
	c.failures = append(c.failures, domain.AttemptFailure{
		ProviderID:   current.ID,
		AttemptIndex: c.pos,
		Kind:         kind,
	})
	if !kind.Advances() {
		return domain.ProviderDescriptor{}, false
	}
	c.pos++
	return c.Current()
}

// Failures lists every recorded attempt failure in order.
func (c *Chain) Failures() []domain.AttemptFailure {
	return append([]domain.AttemptFailure(nil), c.failures...)
}

// Exhausted builds the aggregate error once every candidate has failed.
func (c *Chain) Exhausted() *domain.OrchestrationError {
	msg := "all providers failed"
	if len(c.candidates) == 0 {
		msg = "no configured provider supports this request"
	}
	e := domain.NewOrchestrationError(domain.KindExhausted, msg, nil)
	e.Attempts = c.Failures()
	return e
}
