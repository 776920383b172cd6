package admission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"genjobs/internal/clock"
)

type bucket struct {
	count int
	until time.Time
}

// MemoryGate is a per-process fixed-window counter keyed by class and caller.
type MemoryGate struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	policies map[Class]Policy
	clock    clock.Clock
}

// NewMemoryGate builds an in-memory gate. A nil clock uses the wall clock.
func NewMemoryGate(policies map[Class]Policy, clk clock.Clock) *MemoryGate {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryGate{
		buckets:  make(map[string]*bucket),
		policies: policies,
		clock:    clk,
	}
}

// Admit increments the caller's counter and denies once it exceeds the quota.
func (g *MemoryGate) Admit(ctx context.Context, callerID string, class Class) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	policy, ok := g.policies[class]
	if !ok {
		return Decision{}, fmt.Errorf("admission: unknown class %q", class)
	}
	key := Key(class, callerID)
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.buckets[key]
	if !ok || !now.Before(b.until) {
		b = &bucket{count: 0, until: now.Add(policy.Window)}
		g.buckets[key] = b
	}
	b.count++
	if b.count > policy.Limit {
		return Decision{Allowed: false, RetryAfterSeconds: retryAfter(b.until.Sub(now))}, nil
	}
	return Decision{Allowed: true}, nil
}

// Sweep drops buckets whose window has elapsed.
func (g *MemoryGate) Sweep() int {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, b := range g.buckets {
		if !now.Before(b.until) {
			delete(g.buckets, key)
			removed++
		}
	}
	return removed
}

var _ Gate = (*MemoryGate)(nil)
