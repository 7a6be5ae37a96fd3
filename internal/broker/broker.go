// Package broker fans invalidation events out to subscribers.
//
// Two backends implement Broker. MemoryBroker delivers synchronously inside
// one process. RedisBroker publishes on a Redis pub/sub channel so every
// replica sees every event, and delivers what it receives to local handlers.
// The backend is chosen once at startup; see Open and OpenOrFallback.
package broker

import (
	"context"

	"github.com/rzbill/pulse/internal/realtime"
)

// Channel is the Redis pub/sub channel carrying events.
const Channel = "realtime:events"

// Kind identifies a backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindRedis  Kind = "redis"
)

// Handler receives every published event. Filtering by tenant or topic is
// the handler's job. HandleEvent must not block.
type Handler interface {
	HandleEvent(realtime.Event)
}

// HandlerFunc adapts a function to Handler. Function values are not
// comparable, so each Subscribe of a HandlerFunc is a separate registration.
type HandlerFunc func(realtime.Event)

func (f HandlerFunc) HandleEvent(e realtime.Event) { f(e) }

// Unsubscribe removes a registration. Calling it more than once is a no-op.
type Unsubscribe func()

// Broker publishes and subscribes to events. Publish never reports errors to
// the caller; failures are logged.
type Broker interface {
	Publish(ctx context.Context, e realtime.Event)
	// Subscribe registers h. Registering the same comparable handler twice
	// yields a single registration.
	Subscribe(h Handler) Unsubscribe
	Kind() Kind
	// Ready reports whether events reach other processes.
	Ready() bool
	Close() error
}
