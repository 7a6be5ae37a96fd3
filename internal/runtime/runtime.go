package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/pulse/internal/auth"
	"github.com/rzbill/pulse/internal/broker"
	"github.com/rzbill/pulse/internal/cache"
	cfgpkg "github.com/rzbill/pulse/internal/config"
	"github.com/rzbill/pulse/internal/invalidation"
	"github.com/rzbill/pulse/internal/membership"
	"github.com/rzbill/pulse/internal/ratelimit"
	"github.com/rzbill/pulse/internal/realtime"
	pebblestore "github.com/rzbill/pulse/internal/storage/pebble"
	"github.com/rzbill/pulse/internal/stream"
	"github.com/rzbill/pulse/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	// DataDir overrides Config.DataDir.
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
}

// Runtime holds the process-wide components.
type Runtime struct {
	db     *pebblestore.DB
	config cfgpkg.Config
	logger log.Logger

	broker    broker.Broker
	redis     *redis.Client
	connLimit ratelimit.Limiter
	mutLimit  ratelimit.Limiter
	tags      *cache.Tags
	members   membership.Admin
	publisher *invalidation.Publisher
	resolver  *auth.Resolver
	endpoint  *stream.Endpoint
}

// Status summarises the realtime fabric.
type Status struct {
	Kind     broker.Kind `json:"kind"`
	Ready    bool        `json:"ready"`
	Sessions int64       `json:"sessions"`
	Cached   int         `json:"cached"`
}

// Open initializes storage and the realtime components. A Redis URL that
// cannot be reached is not an error: the broker and limiters fall back to
// their in-memory variants for the life of the process.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	dataDir := opts.DataDir
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       dataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       pebblestore.PrometheusMetrics{},
	})
	if err != nil {
		return nil, err
	}
	rt := &Runtime{db: db, config: cfg, logger: logger}

	if err := rt.openMembers(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}

	rt.broker = broker.OpenOrFallback(ctx, broker.Options{RedisURL: cfg.RedisURL, Logger: logger})
	var scripter redis.Scripter
	if rt.broker.Kind() == broker.KindRedis {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("runtime: parse redis url: %w", err)
		}
		rt.redis = redis.NewClient(ropts)
		scripter = rt.redis
	}
	rt.connLimit = ratelimit.New(scripter, limitConfig(cfg.ConnectionLimit), logger)
	rt.mutLimit = ratelimit.New(scripter, limitConfig(cfg.MutationLimit), logger)

	rt.tags = cache.NewTags(map[realtime.Topic]time.Duration{
		realtime.TopicProjects: time.Duration(cfg.Cache.ProjectsTTLMs) * time.Millisecond,
		realtime.TopicClients:  time.Duration(cfg.Cache.ClientsTTLMs) * time.Millisecond,
		realtime.TopicFiles:    time.Duration(cfg.Cache.FilesTTLMs) * time.Millisecond,
	})
	rt.publisher = invalidation.New(rt.broker, rt.tags, logger)
	rt.resolver = auth.NewResolver(rt.members, logger)
	rt.endpoint = stream.NewEndpoint(stream.Options{
		Broker:  rt.broker,
		Limiter: rt.connLimit,
		Members: rt.members,
		Config: stream.Config{
			Heartbeat:      time.Duration(cfg.Stream.HeartbeatMs) * time.Millisecond,
			BufferSize:     cfg.Stream.BufferSize,
			MaxFilterBytes: cfg.Stream.MaxFilterBytes,
		},
		Logger: logger,
	})

	logger.Info("runtime ready",
		log.Str("data_dir", dataDir),
		log.Str("broker", string(rt.broker.Kind())),
		log.Bool("broker_ready", rt.broker.Ready()))
	return rt, nil
}

func (r *Runtime) openMembers(ctx context.Context) error {
	m, err := membership.Open(ctx, r.config.DatabaseURL, r.db)
	if err != nil {
		return fmt.Errorf("runtime: %w", err)
	}
	r.members = m
	return nil
}

func limitConfig(c cfgpkg.LimitConfig) ratelimit.Config {
	return ratelimit.Config{
		Window: time.Duration(c.WindowMs) * time.Millisecond,
		Max:    c.Max,
		Prefix: c.Prefix,
	}
}

// Close releases every component. It keeps going past failures and returns
// them joined.
func (r *Runtime) Close() error {
	var errs []error
	add := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", what, err))
		}
	}
	if r.broker != nil {
		add("broker", r.broker.Close())
	}
	for _, l := range []ratelimit.Limiter{r.connLimit, r.mutLimit} {
		if c, ok := l.(interface{ Close() error }); ok {
			add("limiter", c.Close())
		}
	}
	if r.redis != nil {
		add("redis", r.redis.Close())
	}
	if r.tags != nil {
		add("cache", r.tags.Close())
	}
	if r.members != nil {
		add("members", r.members.Close())
	}
	if r.db != nil {
		add("db", r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth verifies the local store is readable.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	return r.db.Check()
}

// Status reports the broker mode and live session count.
func (r *Runtime) Status() Status {
	return Status{
		Kind:     r.broker.Kind(),
		Ready:    r.broker.Ready(),
		Sessions: r.endpoint.Active(),
		Cached:   r.tags.Len(),
	}
}

func (r *Runtime) DB() *pebblestore.DB                { return r.db }
func (r *Runtime) Config() cfgpkg.Config              { return r.config }
func (r *Runtime) Logger() log.Logger                 { return r.logger }
func (r *Runtime) Broker() broker.Broker              { return r.broker }
func (r *Runtime) Publisher() *invalidation.Publisher { return r.publisher }
func (r *Runtime) Resolver() *auth.Resolver           { return r.resolver }
func (r *Runtime) Endpoint() *stream.Endpoint         { return r.endpoint }
func (r *Runtime) Members() membership.Admin          { return r.members }
func (r *Runtime) MutationLimiter() ratelimit.Limiter { return r.mutLimit }
func (r *Runtime) Tags() *cache.Tags                  { return r.tags }
