package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rzbill/pulse/internal/metrics"
)

type bucket struct {
	count       int64
	windowStart time.Time
}

// MemoryLimiter keeps one bucket per key in process. Buckets expire one
// window after they were opened so idle keys do not accumulate.
type MemoryLimiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets *ttlcache.Cache[string, *bucket]
}

// NewMemory creates a MemoryLimiter and starts its expiry loop. Call Close to
// stop it.
func NewMemory(cfg Config) *MemoryLimiter {
	m := &MemoryLimiter{
		cfg: cfg,
		now: time.Now,
		buckets: ttlcache.New(
			ttlcache.WithTTL[string, *bucket](cfg.Window),
			ttlcache.WithDisableTouchOnHit[string, *bucket](),
		),
	}
	go m.buckets.Start()
	return m
}

// Acquire opens a new window when the key has none or its window elapsed,
// otherwise increments the count. The increment happens even when the
// result is a denial.
func (m *MemoryLimiter) Acquire(_ context.Context, key string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var b *bucket
	if item := m.buckets.Get(key); item != nil {
		b = item.Value()
	}
	if b == nil || now.Sub(b.windowStart) > m.cfg.Window {
		m.buckets.Set(key, &bucket{count: 1, windowStart: now}, m.cfg.Window)
		metrics.LimiterDecisions.WithLabelValues(m.cfg.Prefix, metrics.ResultAllowed).Inc()
		return Result{OK: true, Count: 1, TTL: m.cfg.Window}
	}

	b.count++
	res := Result{
		OK:    b.count <= m.cfg.Max,
		Count: b.count,
		TTL:   m.cfg.Window - now.Sub(b.windowStart),
	}
	m.record(res)
	return res
}

// Release gives a slot back. A bucket that reaches zero is removed so the
// next Acquire starts a fresh window.
func (m *MemoryLimiter) Release(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.buckets.Get(key)
	if item == nil {
		return
	}
	b := item.Value()
	b.count--
	if b.count <= 0 {
		m.buckets.Delete(key)
	}
}

// Len reports the number of live buckets.
func (m *MemoryLimiter) Len() int {
	return m.buckets.Len()
}

// Close stops the expiry loop.
func (m *MemoryLimiter) Close() error {
	m.buckets.Stop()
	return nil
}

func (m *MemoryLimiter) record(res Result) {
	result := metrics.ResultAllowed
	if !res.OK {
		result = metrics.ResultDenied
	}
	metrics.LimiterDecisions.WithLabelValues(m.cfg.Prefix, result).Inc()
}
