package broker

import (
	"context"

	"github.com/rzbill/pulse/pkg/log"
)

// Options configures Open.
type Options struct {
	// RedisURL selects RedisBroker. Empty means MemoryBroker.
	RedisURL string
	Logger   log.Logger
}

// Open builds the broker described by opts. An empty RedisURL yields a
// MemoryBroker and a degraded-mode warning. A Redis connection failure is
// returned to the caller.
func Open(ctx context.Context, opts Options) (Broker, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	if opts.RedisURL == "" {
		logger.Warn("REDIS_URL missing; realtime will run in degraded in-memory mode",
			log.Domain("realtime"), log.Operation("init"))
		return NewMemory(logger), nil
	}
	return NewRedis(ctx, opts.RedisURL, logger)
}

// OpenOrFallback is Open, except that a Redis failure is logged and a
// MemoryBroker returned. The choice is not revisited for the life of the
// process.
func OpenOrFallback(ctx context.Context, opts Options) Broker {
	b, err := Open(ctx, opts)
	if err == nil {
		return b
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	logger.Warn("realtime broker fell back to memory; set REDIS_URL to enable distributed events",
		log.Domain("realtime"), log.Operation("init"), log.Err(err))
	return NewMemory(logger)
}
