package stream

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/pulse/internal/auth"
	"github.com/rzbill/pulse/internal/broker"
	"github.com/rzbill/pulse/internal/membership"
	"github.com/rzbill/pulse/internal/ratelimit"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

// readyBroker is a memory broker that reports itself as distributed.
type readyBroker struct{ *broker.MemoryBroker }

func (readyBroker) Ready() bool { return true }

type members map[string]bool

func (m members) Lookup(_ context.Context, userID, orgID string) (membership.Membership, bool, error) {
	if orgID == "explode" {
		return membership.Membership{}, false, errors.New("db down")
	}
	if !m[userID+"/"+orgID] {
		return membership.Membership{}, false, nil
	}
	return membership.Membership{UserID: userID, OrganizationID: orgID, Role: membership.RoleOwner}, true, nil
}

type chanSink struct {
	frames chan Frame
	mu     sync.Mutex
	fail   error
}

func newChanSink() *chanSink { return &chanSink{frames: make(chan Frame, 32)} }

func (c *chanSink) Send(f Frame) error {
	c.mu.Lock()
	err := c.fail
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.frames <- f
	return nil
}

func (c *chanSink) Transport() string { return "test" }

func (c *chanSink) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

type fixture struct {
	ep      *Endpoint
	broker  *broker.MemoryBroker
	limiter *ratelimit.MemoryLimiter
}

func newFixture(t *testing.T, b broker.Broker, cfg Config) *fixture {
	t.Helper()
	mem := broker.NewMemory(log.NewNop())
	if b == nil {
		b = readyBroker{mem}
	}
	lim := ratelimit.NewMemory(ratelimit.Config{Window: time.Minute, Max: 2, Prefix: "realtime:connections"})
	t.Cleanup(func() { _ = lim.Close() })
	ep := NewEndpoint(Options{
		Broker:  b,
		Limiter: lim,
		Members: members{"u1/org_a": true, "u1/org_b": true},
		Config:  cfg,
		Logger:  log.NewNop(),
	})
	return &fixture{ep: ep, broker: mem, limiter: lim}
}

func request(org string) Request {
	return Request{
		Identity:       auth.Identity{UserID: "u1", OrganizationID: "org_a"},
		Authenticated:  true,
		OrganizationID: org,
		RateKey:        "u1:1.2.3.4",
	}
}

func admissionStatus(t *testing.T, err error) int {
	t.Helper()
	var ae *AdmissionError
	require.ErrorAs(t, err, &ae)
	return ae.Status
}

func TestAdmissionOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{})

	_, err := f.ep.Admit(ctx, Request{})
	assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))

	noOrg := request("")
	noOrg.Identity.OrganizationID = ""
	_, err = f.ep.Admit(ctx, noOrg)
	assert.Equal(t, http.StatusUnauthorized, admissionStatus(t, err))

	_, err = f.ep.Admit(ctx, request("org_c"))
	assert.Equal(t, http.StatusForbidden, admissionStatus(t, err))

	_, err = f.ep.Admit(ctx, request("explode"))
	assert.Equal(t, http.StatusServiceUnavailable, admissionStatus(t, err))

	bad := request("")
	bad.Filter = "topic =="
	_, err = f.ep.Admit(ctx, bad)
	assert.Equal(t, http.StatusBadRequest, admissionStatus(t, err))

	long := request("")
	long.Filter = "topic == '" + strings.Repeat("x", 2048) + "'"
	_, err = f.ep.Admit(ctx, long)
	var ae *AdmissionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "Filter too long", ae.Message)

	// rejected requests never took a slot
	assert.Equal(t, 0, f.limiter.Len())
}

func TestUnreadyBrokerIs503(t *testing.T) {
	mem := broker.NewMemory(log.NewNop())
	f := newFixture(t, mem, Config{})
	_, err := f.ep.Admit(context.Background(), request(""))
	var ae *AdmissionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusServiceUnavailable, ae.Status)
	assert.Equal(t, BrokerUnavailableMessage, ae.Message)
	assert.Equal(t, 0, f.limiter.Len())
}

func TestRateLimitedIs429(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, Config{})
	s1, err := f.ep.Admit(ctx, request(""))
	require.NoError(t, err)
	defer s1.Close()
	s2, err := f.ep.Admit(ctx, request(""))
	require.NoError(t, err)
	defer s2.Close()

	_, err = f.ep.Admit(ctx, request(""))
	var ae *AdmissionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusTooManyRequests, ae.Status)
	assert.Equal(t, "60", ae.RetryAfter)
}

func TestSessionForwardsOnlyItsOrganization(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, nil, Config{})
	sess, err := f.ep.Admit(ctx, request("org_b"))
	require.NoError(t, err)
	assert.Equal(t, "org_b", sess.OrganizationID)

	sink := newChanSink()
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx, sink) }()

	ready := sink.next(t)
	assert.Equal(t, "event: ready\ndata:{\"ok\":true}\n\n", string(ready.SSE()))

	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicProjects, "org_a", "p1"))
	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicFiles, "org_b", "f1"))
	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicClients, "org_a", "c1"))
	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicClients, "org_b", ""))

	got := []Frame{sink.next(t), sink.next(t)}
	assert.Equal(t, "files", got[0].Event)
	assert.JSONEq(t, `{"topic":"files","organizationId":"org_b","action":"invalidate","entityId":"f1"}`, string(got[0].Data))
	assert.Equal(t, "event: clients\ndata:{\"topic\":\"clients\",\"organizationId\":\"org_b\",\"action\":\"invalidate\"}\n\n", string(got[1].SSE()))

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, sink.frames)
}

func TestSessionFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, nil, Config{})
	req := request("")
	req.Filter = `topic == "files" && entityId.startsWith("img_")`
	sess, err := f.ep.Admit(ctx, req)
	require.NoError(t, err)

	sink := newChanSink()
	go func() { _ = sess.Run(ctx, sink) }()
	sink.next(t) // ready

	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicFiles, "org_a", "doc_1"))
	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicProjects, "org_a", "img_1"))
	f.broker.Publish(ctx, realtime.NewInvalidate(realtime.TopicFiles, "org_a", "img_2"))

	fr := sink.next(t)
	assert.Contains(t, string(fr.Data), "img_2")
}

func TestHeartbeat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, nil, Config{Heartbeat: 10 * time.Millisecond})
	f.ep.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }
	sess, err := f.ep.Admit(ctx, request(""))
	require.NoError(t, err)

	sink := newChanSink()
	go func() { _ = sess.Run(ctx, sink) }()
	sink.next(t) // ready
	ping := sink.next(t)
	assert.Equal(t, "event: ping\ndata:1700000000123\n\n", string(ping.SSE()))
}

func TestCancelReleasesSlotOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, nil, Config{})
	sess, err := f.ep.Admit(ctx, request(""))
	require.NoError(t, err)
	assert.Equal(t, 1, f.limiter.Len())
	assert.Equal(t, 1, f.broker.Subscribers())
	assert.EqualValues(t, 1, f.ep.Active())

	sink := newChanSink()
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx, sink) }()
	sink.next(t)

	cancel()
	require.NoError(t, <-done)
	sess.Close()
	sess.Close()

	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 0, f.broker.Subscribers())
	assert.Equal(t, 0, f.limiter.Len(), "slot released back to baseline")
	assert.EqualValues(t, 0, f.ep.Active())

	// events after close are ignored
	f.broker.Publish(context.Background(), realtime.NewInvalidate(realtime.TopicFiles, "org_a", ""))
	assert.Empty(t, sink.frames)
}

func TestCloseWithoutRun(t *testing.T) {
	f := newFixture(t, nil, Config{})
	sess, err := f.ep.Admit(context.Background(), request(""))
	require.NoError(t, err)
	sess.Close()
	assert.Equal(t, 0, f.limiter.Len())
	assert.Error(t, sess.Run(context.Background(), newChanSink()))
}

func TestSinkFailureEndsSession(t *testing.T) {
	f := newFixture(t, nil, Config{})
	sess, err := f.ep.Admit(context.Background(), request(""))
	require.NoError(t, err)
	sink := newChanSink()
	sink.fail = errors.New("broken pipe")
	err = sess.Run(context.Background(), sink)
	require.Error(t, err)
	assert.Equal(t, StateClosed, sess.State())
	assert.Equal(t, 0, f.limiter.Len())
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	f := newFixture(t, nil, Config{BufferSize: 2})
	sess, err := f.ep.Admit(context.Background(), request(""))
	require.NoError(t, err)
	defer sess.Close()

	// nobody is draining: publish must still return promptly
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			f.broker.Publish(context.Background(), realtime.NewInvalidate(realtime.TopicFiles, "org_a", ""))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow session")
	}
	assert.EqualValues(t, 8, sess.Dropped())
}

func TestFrameJSON(t *testing.T) {
	b, err := ReadyFrame().JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ready","data":{"ok":true}}`, string(b))
}

func TestNewFilter(t *testing.T) {
	f, err := NewFilter("  ", 10)
	require.NoError(t, err)
	assert.True(t, f.Match(realtime.Event{}))

	_, err = NewFilter(`topic`, 0)
	assert.Error(t, err, "non-bool output")

	f, err = NewFilter(`organizationId == "o" && topic in ["files", "clients"]`, 0)
	require.NoError(t, err)
	assert.True(t, f.Match(realtime.NewInvalidate(realtime.TopicClients, "o", "")))
	assert.False(t, f.Match(realtime.NewInvalidate(realtime.TopicProjects, "o", "")))
}
