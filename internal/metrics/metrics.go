// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_events_published_total",
		Help: "Events handed to the broker, labelled by broker kind and topic.",
	}, []string{"kind", "topic"})

	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_publish_errors_total",
		Help: "Events the broker failed to publish, labelled by broker kind.",
	}, []string{"kind"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_events_delivered_total",
		Help: "Events written to a client stream, labelled by transport.",
	}, []string{"transport"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_events_dropped_total",
		Help: "Events not delivered, labelled by reason.",
	}, []string{"reason"})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pulse_stream_sessions_active",
		Help: "Currently open stream sessions, labelled by transport.",
	}, []string{"transport"})

	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_stream_admissions_total",
		Help: "Stream admission outcomes, labelled by HTTP status.",
	}, []string{"status"})

	LimiterDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_ratelimit_decisions_total",
		Help: "Limiter acquire results, labelled by key prefix and result.",
	}, []string{"prefix", "result"})

	LimiterFailOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_ratelimit_fail_open_total",
		Help: "Acquires allowed because the distributed limiter was unreachable.",
	}, []string{"prefix"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_cache_invalidations_total",
		Help: "Dashboard cache tags invalidated, labelled by topic.",
	}, []string{"topic"})

	StorageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_storage_ops_total",
		Help: "Local store operations, labelled by operation.",
	}, []string{"op"})

	StorageOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulse_storage_op_duration_ms",
		Help:    "Local store operation latency in milliseconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
	}, []string{"op"})
)

// Result labels.
const (
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
)
