package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/pulse/internal/realtime"
)

func newTestTags(t *testing.T, ttls map[realtime.Topic]time.Duration) *Tags {
	t.Helper()
	c := NewTags(ttls)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTagRoundTrip(t *testing.T) {
	tag := Tag(realtime.TopicProjects, "org_1")
	assert.Equal(t, "dashboard:projects:org_1", tag)

	topic, org, err := ParseTag(tag)
	require.NoError(t, err)
	assert.Equal(t, realtime.TopicProjects, topic)
	assert.Equal(t, "org_1", org)

	for _, bad := range []string{"dashboard:projects", "other:projects:o", "dashboard:invoices:o", "dashboard:files:"} {
		_, _, err := ParseTag(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultWindows(t *testing.T) {
	c := newTestTags(t, map[realtime.Topic]time.Duration{realtime.TopicFiles: 5 * time.Second})
	assert.Equal(t, 60*time.Second, c.TTL(realtime.TopicProjects))
	assert.Equal(t, 120*time.Second, c.TTL(realtime.TopicClients))
	assert.Equal(t, 5*time.Second, c.TTL(realtime.TopicFiles))
}

func TestInvalidateDropsOnlyThatTag(t *testing.T) {
	ctx := context.Background()
	c := newTestTags(t, nil)
	c.Set(realtime.TopicProjects, "org_1", "p1")
	c.Set(realtime.TopicProjects, "org_2", "p2")
	c.Set(realtime.TopicFiles, "org_1", "f1")

	require.NoError(t, c.Invalidate(ctx, Tag(realtime.TopicProjects, "org_1")))

	_, ok := c.Get(realtime.TopicProjects, "org_1")
	assert.False(t, ok)
	v, ok := c.Get(realtime.TopicProjects, "org_2")
	assert.True(t, ok)
	assert.Equal(t, "p2", v)
	_, ok = c.Get(realtime.TopicFiles, "org_1")
	assert.True(t, ok)

	assert.Error(t, c.Invalidate(ctx, "garbage"))
}

func TestGetOrLoadCachesUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	c := newTestTags(t, nil)
	var loads atomic.Int32
	load := func(context.Context) (any, error) {
		return int(loads.Add(1)), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(ctx, realtime.TopicClients, "org_1", load)
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, loads.Load())

	require.NoError(t, c.Invalidate(ctx, Tag(realtime.TopicClients, "org_1")))
	v, err := c.GetOrLoad(ctx, realtime.TopicClients, "org_1", load)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestTags(t, nil)
	boom := errors.New("boom")
	_, err := c.GetOrLoad(ctx, realtime.TopicFiles, "org_1", func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestSnapshotsExpire(t *testing.T) {
	c := newTestTags(t, map[realtime.Topic]time.Duration{realtime.TopicFiles: 20 * time.Millisecond})
	c.Set(realtime.TopicFiles, "org_1", "f")
	require.Eventually(t, func() bool {
		_, ok := c.Get(realtime.TopicFiles, "org_1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestInvalidateDuringLoadIsNotLost(t *testing.T) {
	ctx := context.Background()
	c := newTestTags(t, nil)
	started := make(chan struct{})
	unblock := make(chan struct{})

	done := make(chan any, 1)
	go func() {
		v, err := c.GetOrLoad(ctx, realtime.TopicProjects, "org_1", func(context.Context) (any, error) {
			close(started)
			<-unblock
			return "stale", nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	require.NoError(t, c.Invalidate(ctx, Tag(realtime.TopicProjects, "org_1")))
	close(unblock)
	assert.Equal(t, "stale", <-done)

	_, ok := c.Get(realtime.TopicProjects, "org_1")
	assert.False(t, ok, "a load overtaken by an invalidation must not be cached")

	v, err := c.GetOrLoad(ctx, realtime.TopicProjects, "org_1", func(context.Context) (any, error) { return "fresh", nil })
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	_, ok = c.Get(realtime.TopicProjects, "org_1")
	assert.True(t, ok)
}

func TestLoadLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	c := newTestTags(t, nil)
	load := func(context.Context) (any, error) { return 1, nil }

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			org := "org_" + string(rune('a'+i%26))
			_, err := c.GetOrLoad(ctx, realtime.TopicFiles, org, load)
			assert.NoError(t, err)
			assert.NoError(t, c.Invalidate(ctx, Tag(realtime.TopicFiles, org)))
		}(i)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.loads)
}

func TestSnapshotRevisionStableUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	c := newTestTags(t, nil)

	first, hit, err := c.Snapshot(ctx, realtime.TopicClients, "org_1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEmpty(t, first.Revision)
	assert.Equal(t, int64(120_000), first.TTLMs)

	again, hit, err := c.Snapshot(ctx, realtime.TopicClients, "org_1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first.Revision, again.Revision)

	other, _, err := c.Snapshot(ctx, realtime.TopicClients, "org_2")
	require.NoError(t, err)
	assert.NotEqual(t, first.Revision, other.Revision)

	require.NoError(t, c.Invalidate(ctx, Tag(realtime.TopicClients, "org_1")))
	next, hit, err := c.Snapshot(ctx, realtime.TopicClients, "org_1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotEqual(t, first.Revision, next.Revision)
}

func TestSnapshotRejectsForeignValue(t *testing.T) {
	c := newTestTags(t, nil)
	c.Set(realtime.TopicFiles, "org_1", "not a snapshot")
	_, _, err := c.Snapshot(context.Background(), realtime.TopicFiles, "org_1")
	assert.Error(t, err)
}
