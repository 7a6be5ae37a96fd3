// Package ratelimit provides fixed-window admission with explicit release.
//
// A Limiter hands out at most Max slots per key inside a Window. Callers that
// hold a slot for the lifetime of a connection or a request give it back with
// Release so the count tracks concurrency rather than arrivals.
//
// Two backends exist: MemoryLimiter keeps buckets in process and RedisLimiter
// keeps one counter per key in Redis, updated atomically by a Lua script so
// every replica shares the same budget.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/pulse/pkg/log"
)

// Config describes one call site's policy.
type Config struct {
	Window time.Duration
	Max    int64
	Prefix string
}

// Result is the outcome of an Acquire.
type Result struct {
	OK    bool
	Count int64
	// TTL is the time left in the current window.
	TTL time.Duration
}

// RetryAfter renders TTL as whole seconds, rounded up, for a Retry-After header.
func (r Result) RetryAfter() string {
	return strconv.FormatInt(int64(math.Ceil(r.TTL.Seconds())), 10)
}

// Limiter acquires and releases slots. Neither method surfaces errors; backend
// failures are logged and the request is allowed.
type Limiter interface {
	Acquire(ctx context.Context, key string) Result
	Release(ctx context.Context, key string)
}

// New returns a RedisLimiter when client is non-nil, otherwise a MemoryLimiter.
func New(client redis.Scripter, cfg Config, logger log.Logger) Limiter {
	if client != nil {
		return NewRedis(client, cfg, logger)
	}
	return NewMemory(cfg)
}
