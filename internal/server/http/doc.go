// Package httpserver is the REST and streaming gateway for Pulse: SSE and
// WebSocket realtime streams, the invalidation endpoint, health, and
// Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default(), Logger: logger})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
