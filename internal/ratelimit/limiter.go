// Package ratelimit implements a fixed-window request counter per client IP backed by Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	rediskeys "github.com/psg2/level-30-birthday/pkg/redis"
)

// Scopes counted independently.
const (
	ScopeCreate = "create"
	ScopeUpdate = "update"
)

const (
	DefaultMax    = 5
	DefaultWindow = time.Hour
)

// Limiter allows at most max calls per window for each (scope, client) pair.
type Limiter struct {
	client *redis.Client
	keys   rediskeys.Keyspace
	max    int64
	window time.Duration
}

// New creates a limiter. Non-positive max or window fall back to the defaults.
func New(client *redis.Client, keys rediskeys.Keyspace, max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{client: client, keys: keys, max: int64(max), window: window}
}

// Allow counts one call for clientID. An empty clientID (no proxy headers) is always allowed.
func (l *Limiter) Allow(ctx context.Context, scope, clientID string) (bool, error) {
	if clientID == "" {
		return true, nil
	}
	key := l.keys.Key("ratelimit", scope, clientID)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr rate limit: %w", err)
	}
	rearm := n == 1
	if !rearm {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("ttl rate limit: %w", err)
		}
		// a lost EXPIRE would otherwise block this client forever
		rearm = ttl < 0
	}
	if rearm {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire rate limit: %w", err)
		}
	}
	return n <= l.max, nil
}
