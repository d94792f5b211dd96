// Package events publishes domain events about tests and attempts to a
// message broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	AttemptStarted   EventType = "attempt.started"
	AttemptSubmitted EventType = "attempt.submitted"
	TestPublished    EventType = "test.published"
	TestUnpublished  EventType = "test.unpublished"
	ImportCommitted  EventType = "import.committed"
)

const (
	eventSource  = "test-access-service"
	eventVersion = "1.0"
)

// Event is the envelope written to the broker
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent builds an event envelope stamped with the given time
func NewEvent(eventType EventType, at time.Time, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: at.UTC(),
		Data:      data,
	}
}

// EventPublisher delivers events. Callers treat publishing as best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
