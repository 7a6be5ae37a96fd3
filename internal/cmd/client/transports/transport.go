// Package transports provides the HTTP and gRPC clients used by the CLI.
package transports

import (
	"context"
	"encoding/json"
)

// Invalidation is the body of POST /v1/invalidate.
type Invalidation struct {
	Topic          string `json:"topic"`
	OrganizationID string `json:"organizationId,omitempty"`
	EntityID       string `json:"entityId,omitempty"`
}

// SubscribeRequest selects the stream to follow.
type SubscribeRequest struct {
	OrganizationID string
	Filter         string
	// Limit stops after this many event frames; 0 means unbounded.
	Limit int
}

// Frame is one server-sent frame.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Status mirrors GET /v1/realtime/status.
type Status struct {
	Kind     string `json:"kind"`
	Ready    bool   `json:"ready"`
	Sessions int64  `json:"sessions"`
	Cached   int    `json:"cached"`
}

// RealtimeTransport is the HTTP surface the CLI drives.
type RealtimeTransport interface {
	Invalidate(ctx context.Context, inv Invalidation) error
	Subscribe(ctx context.Context, req SubscribeRequest, onFrame func(Frame) error) error
	Status(ctx context.Context) (Status, error)
}

// HealthTransport checks server health.
type HealthTransport interface {
	Health(ctx context.Context, service string) (string, error)
}
