package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

// RedisBroker publishes on Channel and delivers received messages to local
// handlers. It uses separate connections for publishing and subscribing.
type RedisBroker struct {
	pub    *redis.Client
	sub    *redis.Client
	ps     *redis.PubSub
	logger log.Logger

	handlers handlerSet
	done     chan struct{}
	closer   sync.Once
}

// NewRedis connects to url, confirms the subscription and starts the receive
// loop. Any failure closes what was opened and returns an error.
func NewRedis(ctx context.Context, url string, logger log.Logger) (*RedisBroker, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broker: parse redis url: %w", err)
	}

	pub := redis.NewClient(opts)
	if err := pub.Ping(ctx).Err(); err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("broker: failed to ping redis: %w", err)
	}

	sub := redis.NewClient(opts)
	ps := sub.Subscribe(ctx, Channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		_ = sub.Close()
		_ = pub.Close()
		return nil, fmt.Errorf("broker: subscribe %s: %w", Channel, err)
	}

	b := &RedisBroker{
		pub:    pub,
		sub:    sub,
		ps:     ps,
		logger: logger.With(log.Domain("realtime"), log.Component("broker")),
		done:   make(chan struct{}),
	}
	go b.receive(ps.Channel())
	return b, nil
}

func (b *RedisBroker) receive(msgs <-chan *redis.Message) {
	defer close(b.done)
	for msg := range msgs {
		if msg.Channel != Channel {
			continue
		}
		e, err := realtime.Decode([]byte(msg.Payload))
		if err != nil {
			metrics.EventsDropped.WithLabelValues("malformed").Inc()
			b.logger.Warn("failed to parse realtime message", log.Operation("parse"), log.Err(err))
			continue
		}
		b.handlers.dispatch(e, b.logger)
	}
}

// Publish sends e to every subscribed process, including this one.
func (b *RedisBroker) Publish(ctx context.Context, e realtime.Event) {
	data, err := e.Encode()
	if err == nil {
		err = e.Validate()
	}
	if err == nil {
		err = b.pub.Publish(ctx, Channel, data).Err()
	}
	if err != nil {
		metrics.PublishErrors.WithLabelValues(string(KindRedis)).Inc()
		b.logger.Warn("realtime publish failed", log.Operation("publish"), log.Org(e.OrganizationID), log.Err(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(KindRedis), e.Topic.String()).Inc()
}

func (b *RedisBroker) Subscribe(h Handler) Unsubscribe { return b.handlers.add(h) }

func (b *RedisBroker) Kind() Kind { return KindRedis }

func (b *RedisBroker) Ready() bool { return true }

// Subscribers reports the number of live registrations.
func (b *RedisBroker) Subscribers() int { return b.handlers.len() }

// Close unsubscribes, waits for the receive loop and closes both clients.
func (b *RedisBroker) Close() error {
	var errs []error
	b.closer.Do(func() {
		if err := b.ps.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
		<-b.done
		b.handlers.clear()
		if err := b.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
		if err := b.pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	})
	return errors.Join(errs...)
}
