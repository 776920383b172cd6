package admission

import (
	"context"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"genjobs/internal/infra"
)

// RedisGate shares admission counters across API instances. Each key holds an
// integer counter whose TTL is the remainder of the current window.
type RedisGate struct {
	client   redis.Cmdable
	policies map[Class]Policy
	prefix   string
	logger   *infra.Logger
}

// RedisOptions configures a RedisGate.
type RedisOptions struct {
	Policies map[Class]Policy
	Prefix   string
	Logger   *infra.Logger
}

// NewRedisGate wires a gate over an existing redis client.
func NewRedisGate(client redis.Cmdable, opts RedisOptions) *RedisGate {
	policies := opts.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "admission:"
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &RedisGate{client: client, policies: policies, prefix: prefix, logger: logger}
}

// Admit increments the shared counter. Redis failures fail open so a cache
// outage never blocks generation outright.
func (g *RedisGate) Admit(ctx context.Context, callerID string, class Class) (Decision, error) {
	policy, ok := g.policies[class]
	if !ok {
		return Decision{}, fmt.Errorf("admission: unknown class %q", class)
	}
	key := g.prefix + Key(class, callerID)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := g.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("key", key).Msg("admission: redis check failed; failing open")
		return Decision{Allowed: true}, nil
	}

	count := incr.Val()
	remaining := ttl.Val()
	if remaining < 0 {
		// first hit of a new window
		if err := g.client.PExpire(ctx, key, policy.Window).Err(); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("admission: set window expiry failed")
		}
		remaining = policy.Window
	}
	if count > int64(policy.Limit) {
		return Decision{Allowed: false, RetryAfterSeconds: retryAfter(remaining)}, nil
	}
	return Decision{Allowed: true}, nil
}

// Reset clears the counter of one caller (operator action).
func (g *RedisGate) Reset(ctx context.Context, callerID string, class Class) error {
	if err := g.client.Del(ctx, g.prefix+Key(class, callerID)).Err(); err != nil {
		return fmt.Errorf("admission: reset: %w", err)
	}
	return nil
}

var _ Gate = (*RedisGate)(nil)
