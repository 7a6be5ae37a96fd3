package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/pulse/internal/realtime"
)

// Snapshot is the cached revision of one dashboard topic for an
// organization. Revision stays stable until the tag is invalidated or its
// revalidate window lapses, so clients can use it as an ETag.
type Snapshot struct {
	Topic          realtime.Topic `json:"topic"`
	OrganizationID string         `json:"organizationId"`
	Revision       string         `json:"revision"`
	LoadedAtMs     int64          `json:"loadedAtMs"`
	TTLMs          int64          `json:"ttlMs"`
}

// Snapshot returns the current revision for topic in orgID, minting a new
// one on a miss. hit reports whether the revision came from the cache.
func (t *Tags) Snapshot(ctx context.Context, topic realtime.Topic, orgID string) (Snapshot, bool, error) {
	loaded := false
	v, err := t.GetOrLoad(ctx, topic, orgID, func(context.Context) (any, error) {
		loaded = true
		return Snapshot{
			Topic:          topic,
			OrganizationID: orgID,
			Revision:       uuid.NewString(),
			LoadedAtMs:     time.Now().UnixMilli(),
			TTLMs:          t.TTL(topic).Milliseconds(),
		}, nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	s, ok := v.(Snapshot)
	if !ok {
		return Snapshot{}, false, fmt.Errorf("cache: tag %s holds %T", Tag(topic, orgID), v)
	}
	return s, !loaded, nil
}
