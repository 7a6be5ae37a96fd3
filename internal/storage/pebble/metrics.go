package pebblestore

import (
	"time"

	"github.com/rzbill/pulse/internal/metrics"
)

// PrometheusMetrics reports store operations to the process collectors.
type PrometheusMetrics struct{}

func (PrometheusMetrics) Observe(op string, elapsed time.Duration, _ int) {
	metrics.StorageOps.WithLabelValues(op).Inc()
	metrics.StorageOpDuration.WithLabelValues(op).Observe(float64(elapsed.Microseconds()) / 1000)
}
