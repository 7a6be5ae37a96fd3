package stream

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/pulse/internal/auth"
	"github.com/rzbill/pulse/internal/broker"
	"github.com/rzbill/pulse/internal/membership"
	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/ratelimit"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

// MembershipLookup is the membership read used at admission.
type MembershipLookup interface {
	Lookup(ctx context.Context, userID, orgID string) (membership.Membership, bool, error)
}

// Config tunes sessions.
type Config struct {
	Heartbeat      time.Duration
	BufferSize     int
	MaxFilterBytes int
}

// DefaultConfig matches the server defaults.
func DefaultConfig() Config {
	return Config{Heartbeat: 20 * time.Second, BufferSize: 64, MaxFilterBytes: 2048}
}

// Options wires an Endpoint.
type Options struct {
	Broker  broker.Broker
	Limiter ratelimit.Limiter
	Members MembershipLookup
	Config  Config
	Logger  log.Logger
}

// Endpoint admits and tracks stream sessions.
type Endpoint struct {
	broker  broker.Broker
	limiter ratelimit.Limiter
	members MembershipLookup
	cfg     Config
	logger  log.Logger
	now     func() time.Time

	active atomic.Int64
}

// NewEndpoint returns an Endpoint. Zero config fields take DefaultConfig values.
func NewEndpoint(opts Options) *Endpoint {
	def := DefaultConfig()
	cfg := opts.Config
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = def.Heartbeat
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MaxFilterBytes <= 0 {
		cfg.MaxFilterBytes = def.MaxFilterBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Endpoint{
		broker:  opts.Broker,
		limiter: opts.Limiter,
		members: opts.Members,
		cfg:     cfg,
		logger:  logger.With(log.Domain("realtime"), log.Component("stream")),
		now:     time.Now,
	}
}

// Request is what Admit needs from the transport.
type Request struct {
	// Identity is the resolved caller; ok=false means anonymous.
	Identity      auth.Identity
	Authenticated bool
	// OrganizationID is the requested tenant. Empty means the caller's own.
	OrganizationID string
	Filter         string
	// RateKey is the limiter key, normally ratelimit.KeyFor(user, r).
	RateKey string
}

// Active reports the number of sessions not yet closed.
func (ep *Endpoint) Active() int64 { return ep.active.Load() }

// Admit runs the admission checks and, on success, returns a Session that is
// already subscribed to the broker and holds a limiter slot. The caller must
// Close it. Every error is an *AdmissionError.
func (ep *Endpoint) Admit(ctx context.Context, req Request) (*Session, error) {
	sess, err := ep.admit(ctx, req)
	if err != nil {
		metrics.Admissions.WithLabelValues(statusLabel(err.Status)).Inc()
		return nil, err
	}
	metrics.Admissions.WithLabelValues("200").Inc()
	return sess, nil
}

func (ep *Endpoint) admit(ctx context.Context, req Request) (*Session, *AdmissionError) {
	id := req.Identity
	if !req.Authenticated || id.UserID == "" || id.OrganizationID == "" {
		return nil, unauthorized()
	}

	orgID := req.OrganizationID
	if orgID == "" {
		orgID = id.OrganizationID
	}
	m, ok, err := ep.members.Lookup(ctx, id.UserID, orgID)
	if err != nil {
		ep.logger.Error("membership lookup failed", log.Operation("admit"), log.Org(orgID), log.Err(err))
		return nil, unavailable("Membership lookup unavailable")
	}
	if !ok {
		return nil, forbidden()
	}
	orgID = m.OrganizationID

	if !ep.broker.Ready() {
		return nil, unavailable(BrokerUnavailableMessage)
	}

	filter, err := NewFilter(req.Filter, ep.cfg.MaxFilterBytes)
	if err != nil {
		return nil, badFilter(err)
	}

	res := ep.limiter.Acquire(ctx, req.RateKey)
	if !res.OK {
		return nil, tooMany(res.RetryAfter())
	}

	s := &Session{
		ID:             uuid.NewString(),
		UserID:         id.UserID,
		OrganizationID: orgID,
		ep:             ep,
		rateKey:        req.RateKey,
		filter:         filter,
		events:         make(chan realtime.Event, ep.cfg.BufferSize),
	}
	s.logger = ep.logger.With(log.Org(orgID), log.Str("session", s.ID))
	s.state.Store(int32(StateAdmitted))
	s.unsubscribe = ep.broker.Subscribe(s)
	ep.active.Add(1)
	return s, nil
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
