// Package realtime defines the invalidation events carried by the broker.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Topic names an entity family whose cached reads can go stale.
type Topic string

const (
	TopicProjects Topic = "projects"
	TopicClients  Topic = "clients"
	TopicFiles    Topic = "files"
)

// ActionInvalidate is the only action events carry today.
const ActionInvalidate = "invalidate"

// Topics lists every known topic in a stable order.
var Topics = []Topic{TopicProjects, TopicClients, TopicFiles}

var (
	// ErrUnknownTopic is returned for topic names outside the closed set.
	ErrUnknownTopic = errors.New("realtime: unknown topic")
	// ErrMissingOrganization is returned when an event has no tenant.
	ErrMissingOrganization = errors.New("realtime: organizationId is required")
)

// ParseTopic validates s against the closed topic set.
func ParseTopic(s string) (Topic, error) {
	switch t := Topic(s); t {
	case TopicProjects, TopicClients, TopicFiles:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTopic, s)
}

// Valid reports whether t is one of the known topics.
func (t Topic) Valid() bool {
	_, err := ParseTopic(string(t))
	return err == nil
}

func (t Topic) String() string { return string(t) }

// Event tells subscribers that data for an organization changed.
type Event struct {
	Topic          Topic  `json:"topic"`
	OrganizationID string `json:"organizationId"`
	Action         string `json:"action"`
	EntityID       string `json:"entityId,omitempty"`
}

// NewInvalidate builds an invalidate event.
func NewInvalidate(topic Topic, orgID, entityID string) Event {
	return Event{Topic: topic, OrganizationID: orgID, Action: ActionInvalidate, EntityID: entityID}
}

// Validate checks that e can be published.
func (e Event) Validate() error {
	if !e.Topic.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTopic, e.Topic)
	}
	if e.OrganizationID == "" {
		return ErrMissingOrganization
	}
	if e.Action != ActionInvalidate {
		return fmt.Errorf("realtime: unsupported action %q", e.Action)
	}
	return nil
}

// Decode parses a wire payload and validates it.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Encode returns the wire payload for e.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
