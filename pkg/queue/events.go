package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies a job lifecycle event.
type EventType string

const (
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventStalled   EventType = "stalled"
)

// Event is emitted on job lifecycle transitions. Observers (logging,
// metrics) subscribe to the queue's event stream; the queue itself never
// depends on a subscriber being present.
type Event struct {
	Type           EventType `json:"type"`
	JobID          uuid.UUID `json:"job_id"`
	NotificationID uuid.UUID `json:"notification_id"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}
