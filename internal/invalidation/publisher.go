// Package invalidation announces completed mutations to live clients and
// drops the matching server-side read snapshots.
package invalidation

import (
	"context"
	"fmt"

	"github.com/rzbill/pulse/internal/broker"
	"github.com/rzbill/pulse/internal/cache"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

// CacheInvalidator drops cached reads by tag. *cache.Tags implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tag string) error
}

// Params describes one mutation.
type Params struct {
	Topic          realtime.Topic
	OrganizationID string
	EntityID       string
}

// Publisher runs the post-mutation steps.
type Publisher struct {
	broker broker.Broker
	cache  CacheInvalidator
	logger log.Logger
}

// New returns a Publisher. cache may be nil.
func New(b broker.Broker, c CacheInvalidator, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Publisher{
		broker: b,
		cache:  c,
		logger: logger.With(log.Domain("realtime"), log.Component("invalidation")),
	}
}

// InvalidateAndPublish publishes an invalidate event and then drops the
// dashboard cache tag for the topic and organization. The two steps are
// independent: a failure or panic in one is logged and the other still runs.
// Nothing is returned because the mutation has already succeeded.
func (p *Publisher) InvalidateAndPublish(ctx context.Context, params Params) {
	p.step(params, "publish", "realtime publish failed (ignored)", func() error {
		p.broker.Publish(ctx, realtime.NewInvalidate(params.Topic, params.OrganizationID, params.EntityID))
		return nil
	})
	p.step(params, "revalidate", "server cache revalidation failed (ignored)", func() error {
		if p.cache == nil {
			return nil
		}
		return p.cache.Invalidate(ctx, cache.Tag(params.Topic, params.OrganizationID))
	})
}

func (p *Publisher) step(params Params, op, msg string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn(msg, log.Operation(op), log.Org(params.OrganizationID),
				log.Str("topic", params.Topic.String()), log.Err(fmt.Errorf("panic: %v", r)))
		}
	}()
	if err := fn(); err != nil {
		p.logger.Warn(msg, log.Operation(op), log.Org(params.OrganizationID),
			log.Str("topic", params.Topic.String()), log.Err(err))
	}
}
