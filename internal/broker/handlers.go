package broker

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

type registration struct {
	key any
	h   Handler
}

// handlerSet keeps registrations in insertion order, deduplicated by handler
// identity.
type handlerSet struct {
	mu      sync.RWMutex
	entries []*registration
	byKey   map[any]*registration
}

func identity(h Handler) any {
	if reflect.TypeOf(h).Comparable() {
		return h
	}
	return new(byte)
}

func (s *handlerSet) add(h Handler) Unsubscribe {
	key := identity(h)

	s.mu.Lock()
	if s.byKey == nil {
		s.byKey = make(map[any]*registration)
	}
	reg, ok := s.byKey[key]
	if !ok {
		reg = &registration{key: key, h: h}
		s.byKey[key] = reg
		s.entries = append(s.entries, reg)
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(reg) })
	}
}

func (s *handlerSet) remove(reg *registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byKey[reg.key] != reg {
		return
	}
	delete(s.byKey, reg.key)
	for i, r := range s.entries {
		if r == reg {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			break
		}
	}
}

func (s *handlerSet) snapshot() []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Handler, len(s.entries))
	for i, r := range s.entries {
		out[i] = r.h
	}
	return out
}

func (s *handlerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *handlerSet) clear() {
	s.mu.Lock()
	s.entries = nil
	s.byKey = nil
	s.mu.Unlock()
}

// dispatch calls every handler outside the lock. A panicking handler is
// logged and does not stop delivery to the rest.
func (s *handlerSet) dispatch(e realtime.Event, logger log.Logger) {
	for _, h := range s.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.EventsDropped.WithLabelValues("handler_panic").Inc()
					logger.Error("realtime handler panicked",
						log.Operation("dispatch"), log.Org(e.OrganizationID), log.Str("panic", fmt.Sprint(r)))
				}
			}()
			h.HandleEvent(e)
		}()
	}
}
