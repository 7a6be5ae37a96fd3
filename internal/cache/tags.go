// Package cache keeps short-lived dashboard read snapshots, keyed by tag, that
// are dropped as soon as an invalidation for the tag arrives.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/realtime"
)

const tagPrefix = "dashboard"

// DefaultTTLs are the revalidate windows per topic.
var DefaultTTLs = map[realtime.Topic]time.Duration{
	realtime.TopicProjects: 60 * time.Second,
	realtime.TopicClients:  120 * time.Second,
	realtime.TopicFiles:    30 * time.Second,
}

// Tag returns the cache tag for a topic and organization.
func Tag(topic realtime.Topic, orgID string) string {
	return tagPrefix + ":" + string(topic) + ":" + orgID
}

// ParseTag splits a tag produced by Tag.
func ParseTag(tag string) (realtime.Topic, string, error) {
	parts := strings.SplitN(tag, ":", 3)
	if len(parts) != 3 || parts[0] != tagPrefix || parts[2] == "" {
		return "", "", fmt.Errorf("cache: malformed tag %q", tag)
	}
	topic, err := realtime.ParseTopic(parts[1])
	if err != nil {
		return "", "", err
	}
	return topic, parts[2], nil
}

// Loader computes a snapshot on a miss.
type Loader func(ctx context.Context) (any, error)

// Tags caches one snapshot per tag.
type Tags struct {
	ttls  map[realtime.Topic]time.Duration
	items *ttlcache.Cache[string, any]

	// loads holds one entry per tag with a miss in flight
	mu    sync.Mutex
	loads map[string]*inflight
}

// inflight serializes misses for one tag. gen moves on every Invalidate so a
// load that started before it does not store its result.
type inflight struct {
	mu   sync.Mutex
	refs int
	gen  uint64
}

// NewTags creates a cache. Topics missing from ttls use DefaultTTLs.
func NewTags(ttls map[realtime.Topic]time.Duration) *Tags {
	merged := make(map[realtime.Topic]time.Duration, len(DefaultTTLs))
	for k, v := range DefaultTTLs {
		merged[k] = v
	}
	for k, v := range ttls {
		if v > 0 {
			merged[k] = v
		}
	}
	t := &Tags{
		ttls: merged,
		items: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, any](),
		),
		loads: make(map[string]*inflight),
	}
	go t.items.Start()
	return t
}

// TTL returns the revalidate window for topic.
func (t *Tags) TTL(topic realtime.Topic) time.Duration {
	return t.ttls[topic]
}

// Get returns the cached snapshot for a topic and organization.
func (t *Tags) Get(topic realtime.Topic, orgID string) (any, bool) {
	item := t.items.Get(Tag(topic, orgID))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Set stores a snapshot for the topic's revalidate window.
func (t *Tags) Set(topic realtime.Topic, orgID string, v any) {
	t.items.Set(Tag(topic, orgID), v, t.TTL(topic))
}

// GetOrLoad returns the cached snapshot or runs load once per tag and caches
// its result. Load errors are returned and not cached. A result whose tag was
// invalidated while load ran is returned to the caller but not cached.
func (t *Tags) GetOrLoad(ctx context.Context, topic realtime.Topic, orgID string, load Loader) (any, error) {
	if v, ok := t.Get(topic, orgID); ok {
		return v, nil
	}
	tag := Tag(topic, orgID)
	f := t.acquire(tag)
	defer t.release(tag, f)
	if v, ok := t.Get(topic, orgID); ok {
		return v, nil
	}

	t.mu.Lock()
	gen := f.gen
	t.mu.Unlock()

	v, err := load(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if f.gen == gen {
		t.items.Set(tag, v, t.TTL(topic))
	}
	t.mu.Unlock()
	return v, nil
}

func (t *Tags) acquire(tag string) *inflight {
	t.mu.Lock()
	f, ok := t.loads[tag]
	if !ok {
		f = &inflight{}
		t.loads[tag] = f
	}
	f.refs++
	t.mu.Unlock()
	f.mu.Lock()
	return f
}

func (t *Tags) release(tag string, f *inflight) {
	f.mu.Unlock()
	t.mu.Lock()
	f.refs--
	if f.refs == 0 {
		delete(t.loads, tag)
	}
	t.mu.Unlock()
}

// Invalidate drops the snapshot for tag.
func (t *Tags) Invalidate(_ context.Context, tag string) error {
	topic, _, err := ParseTag(tag)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if f, ok := t.loads[tag]; ok {
		f.gen++
	}
	t.items.Delete(tag)
	t.mu.Unlock()
	metrics.CacheInvalidations.WithLabelValues(topic.String()).Inc()
	return nil
}

// Len reports the number of cached snapshots.
func (t *Tags) Len() int {
	return t.items.Len()
}

// Close stops the expiry loop.
func (t *Tags) Close() error {
	t.items.Stop()
	return nil
}
