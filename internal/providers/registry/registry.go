// Package registry resolves which generation backends are usable with the
// credentials and endpoint identifiers available at startup.
package registry

import (
	"time"

	"genjobs/internal/domain"
)

// Settings is the subset of service configuration the resolver needs.
type Settings struct {
	// Credentials reports, per family, whether an API key is available.
	Credentials map[domain.ProviderFamily]bool
	// Endpoints maps provider id to its Runpod endpoint id or Replicate model version.
	Endpoints    map[string]string
	Timeouts     map[domain.MediaKind]time.Duration
	PollInterval time.Duration
	// Order overrides the default per-kind order when non-empty for a kind.
	Order map[domain.MediaKind][]string
}

// Resolver answers capability questions. It is immutable after New.
type Resolver struct {
	byID  map[string]domain.ProviderDescriptor
	ids   []string
	order map[domain.MediaKind][]string
}

// DefaultTimeouts are the per-kind job ceilings used when config leaves them unset.
func DefaultTimeouts() map[domain.MediaKind]time.Duration {
	return map[domain.MediaKind]time.Duration{
		domain.MediaKindImage:     2 * time.Minute,
		domain.MediaKindVideo:     10 * time.Minute,
		domain.MediaKindAudio:     5 * time.Minute,
		domain.MediaKindLLMText:   2 * time.Minute,
		domain.MediaKindEmbedding: 30 * time.Second,
	}
}

// New builds the resolver from settings.
func New(s Settings) *Resolver {
	timeouts := DefaultTimeouts()
	for kind, d := range s.Timeouts {
		if d > 0 {
			timeouts[kind] = d
		}
	}
	interval := s.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	r := &Resolver{
		byID:  make(map[string]domain.ProviderDescriptor, len(catalogue)),
		order: make(map[domain.MediaKind][]string, len(defaultOrder)),
	}
	for _, e := range catalogue {
		endpoint := s.Endpoints[e.id]
		d := domain.ProviderDescriptor{
			ID:           e.id,
			Family:       e.family,
			Model:        e.model,
			MediaKinds:   append([]domain.MediaKind(nil), e.kinds...),
			Transport:    e.transport,
			Endpoint:     endpoint,
			Configured:   s.Credentials[e.family] && endpoint != "",
			PollInterval: interval,
			Timeouts:     make(map[domain.MediaKind]time.Duration, len(e.kinds)),
		}
		for _, k := range e.kinds {
			d.Timeouts[k] = timeouts[k]
		}
		r.byID[e.id] = d
		r.ids = append(r.ids, e.id)
	}
	for kind, ids := range defaultOrder {
		r.order[kind] = append([]string(nil), ids...)
	}
	for kind, ids := range s.Order {
		if len(ids) > 0 {
			r.order[kind] = append([]string(nil), ids...)
		}
	}
	return r
}

// Descriptor returns the descriptor for id.
func (r *Resolver) Descriptor(id string) (domain.ProviderDescriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// IsConfigured reports whether id is known and has its credential and endpoint.
func (r *Resolver) IsConfigured(id string) bool {
	d, ok := r.byID[id]
	return ok && d.Configured
}

// ListConfigured returns configured descriptors that support kind, in
// catalogue order.
func (r *Resolver) ListConfigured(kind domain.MediaKind) []domain.ProviderDescriptor {
	var out []domain.ProviderDescriptor
	for _, id := range r.ids {
		d := r.byID[id]
		if d.Configured && d.Supports(kind) {
			out = append(out, d)
		}
	}
	return out
}

// All returns every descriptor in catalogue order, configured or not.
func (r *Resolver) All() []domain.ProviderDescriptor {
	out := make([]domain.ProviderDescriptor, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id])
	}
	return out
}

// DefaultOrder returns the fallback order for kind.
func (r *Resolver) DefaultOrder(kind domain.MediaKind) []string {
	return append([]string(nil), r.order[kind]...)
}
