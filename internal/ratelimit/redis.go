package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/pkg/log"
)

var acquireScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

var releaseScript = redis.NewScript(`
local current = redis.call("DECR", KEYS[1])
if current <= 0 then
  redis.call("DEL", KEYS[1])
end
return current
`)

// RedisLimiter keeps counters at "<prefix>:<key>" in Redis.
type RedisLimiter struct {
	client redis.Scripter
	cfg    Config
	logger log.Logger

	warn rate.Sometimes
}

// NewRedis returns a limiter backed by client.
func NewRedis(client redis.Scripter, cfg Config, logger log.Logger) *RedisLimiter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		logger: logger.With(log.Domain("realtime"), log.Component("ratelimit")),
		warn:   rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

func (l *RedisLimiter) key(key string) string {
	return l.cfg.Prefix + ":" + key
}

// Acquire increments the key's counter. If Redis cannot be reached the
// request is allowed.
func (l *RedisLimiter) Acquire(ctx context.Context, key string) Result {
	vals, err := acquireScript.Run(ctx, l.client, []string{l.key(key)}, l.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		metrics.LimiterFailOpen.WithLabelValues(l.cfg.Prefix).Inc()
		l.warn.Do(func() {
			l.logger.Warn("redis rate limiter failed; falling back to allow",
				log.Operation("rate-limit"), log.Str("prefix", l.cfg.Prefix), log.Err(err))
		})
		return Result{OK: true, Count: 1, TTL: l.cfg.Window}
	}

	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	if ttl <= 0 {
		ttl = l.cfg.Window
	}
	res := Result{OK: count <= l.cfg.Max, Count: count, TTL: ttl}
	result := metrics.ResultAllowed
	if !res.OK {
		result = metrics.ResultDenied
	}
	metrics.LimiterDecisions.WithLabelValues(l.cfg.Prefix, result).Inc()
	return res
}

// Release decrements the key's counter and deletes it at zero.
func (l *RedisLimiter) Release(ctx context.Context, key string) {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(key)}).Err(); err != nil {
		l.logger.Warn("redis release limiter failed",
			log.Operation("rate-limit-release"), log.Str("prefix", l.cfg.Prefix), log.Err(err))
	}
}
