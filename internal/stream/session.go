package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/pulse/internal/broker"
	"github.com/rzbill/pulse/internal/metrics"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/pkg/log"
)

// State is a session's lifecycle position.
type State int32

const (
	StateAdmitted State = iota + 1
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is one admitted client connection scoped to a single organization.
type Session struct {
	ID             string
	UserID         string
	OrganizationID string

	ep      *Endpoint
	logger  log.Logger
	rateKey string
	filter  Filter

	events      chan realtime.Event
	unsubscribe broker.Unsubscribe
	dropped     atomic.Int64
	state       atomic.Int32

	mu            sync.Mutex
	stopHeartbeat func()
	closeOnce     sync.Once
}

var _ broker.Handler = (*Session)(nil)

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Dropped reports events discarded because the client could not keep up.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// HandleEvent is called by the broker. It never blocks: events for other
// organizations, events rejected by the filter and events arriving while the
// buffer is full are dropped.
func (s *Session) HandleEvent(e realtime.Event) {
	if e.OrganizationID != s.OrganizationID {
		return
	}
	if st := s.State(); st == StateClosing || st == StateClosed {
		return
	}
	if !s.filter.Match(e) {
		return
	}
	select {
	case s.events <- e:
	default:
		s.dropped.Add(1)
		metrics.EventsDropped.WithLabelValues("buffer_full").Inc()
	}
}

// Run writes the ready frame, then forwards matching events and heartbeats
// until ctx is done or the sink fails. It closes the session before
// returning. A nil error means the client went away.
func (s *Session) Run(ctx context.Context, sink Sink) error {
	defer s.Close()
	if !s.state.CompareAndSwap(int32(StateAdmitted), int32(StateStreaming)) {
		return fmt.Errorf("stream: session %s is %s", s.ID, s.State())
	}

	transport := sink.Transport()
	gauge := metrics.ActiveSessions.WithLabelValues(transport)
	gauge.Inc()
	defer gauge.Dec()

	ticker := time.NewTicker(s.ep.cfg.Heartbeat)
	s.mu.Lock()
	s.stopHeartbeat = ticker.Stop
	s.mu.Unlock()

	if err := sink.Send(ReadyFrame()); err != nil {
		return s.sendFailed(err)
	}
	s.logger.Debug("stream opened", log.Operation("stream"), log.Str("transport", transport))

	delivered := metrics.EventsDelivered.WithLabelValues(transport)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-s.events:
			if ctx.Err() != nil {
				return nil
			}
			f, err := EventFrame(e)
			if err != nil {
				s.logger.Error("encode event failed", log.Operation("stream"), log.Err(err))
				return err
			}
			if err := sink.Send(f); err != nil {
				return s.sendFailed(err)
			}
			delivered.Inc()
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := sink.Send(PingFrame(s.ep.now())); err != nil {
				return s.sendFailed(err)
			}
		}
	}
}

func (s *Session) sendFailed(err error) error {
	s.logger.Debug("stream write failed", log.Operation("stream"), log.Err(err))
	return fmt.Errorf("stream: send: %w", err)
}

// Close unsubscribes from the broker, stops the heartbeat and releases the
// limiter slot. Each step runs even if another panics. Only the first call
// has any effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))

		s.cleanup("unsubscribe", func() {
			if s.unsubscribe != nil {
				s.unsubscribe()
			}
		})
		s.cleanup("heartbeat", func() {
			s.mu.Lock()
			stop := s.stopHeartbeat
			s.mu.Unlock()
			if stop != nil {
				stop()
			}
		})
		s.cleanup("release", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.ep.limiter.Release(ctx, s.rateKey)
		})

		s.ep.active.Add(-1)
		s.state.Store(int32(StateClosed))
		if n := s.dropped.Load(); n > 0 {
			s.logger.Warn("stream closed with dropped events", log.Operation("stream"), log.Int64("dropped", n))
		}
	})
}

func (s *Session) cleanup(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("stream cleanup failed", log.Operation("close"),
				log.Str("step", step), log.Str("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
