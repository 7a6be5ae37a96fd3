package broker

import (
	"context"

	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

// MemoryBroker delivers events to handlers in this process only.
type MemoryBroker struct {
	handlers handlerSet
	logger   log.Logger
}

// NewMemory returns an in-process broker.
func NewMemory(logger log.Logger) *MemoryBroker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &MemoryBroker{logger: logger.With(log.Domain("realtime"), log.Component("broker"))}
}

// Publish delivers e to every handler, in registration order, before
// returning.
func (b *MemoryBroker) Publish(_ context.Context, e realtime.Event) {
	if err := e.Validate(); err != nil {
		metrics.PublishErrors.WithLabelValues(string(KindMemory)).Inc()
		b.logger.Warn("realtime publish rejected", log.Operation("publish"), log.Org(e.OrganizationID), log.Err(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(KindMemory), e.Topic.String()).Inc()
	b.handlers.dispatch(e, b.logger)
}

func (b *MemoryBroker) Subscribe(h Handler) Unsubscribe { return b.handlers.add(h) }

func (b *MemoryBroker) Kind() Kind { return KindMemory }

// Ready is always false: events never leave the process.
func (b *MemoryBroker) Ready() bool { return false }

// Subscribers reports the number of live registrations.
func (b *MemoryBroker) Subscribers() int { return b.handlers.len() }

func (b *MemoryBroker) Close() error {
	b.handlers.clear()
	return nil
}
