package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a queue job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Priority ranks for jobs; higher ranks are claimed first.
const (
	RankLow    = 1
	RankMedium = 2
	RankHigh   = 3
)

// Job is a unit of delivery work. It references the notification record by
// id and carries a denormalized payload snapshot so the first attempt needs
// no store read. The record store, not the job, is the source of truth for
// delivery status.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	NotificationID uuid.UUID       `json:"notification_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Priority       int             `json:"priority"`
	AttemptsMade   int             `json:"attempts_made"`
	MaxAttempts    int             `json:"max_attempts"`
	State          State           `json:"state"`
	RunAt          time.Time       `json:"run_at"`
	LockedUntil    *time.Time      `json:"locked_until,omitempty"`
	LockedBy       *uuid.UUID      `json:"locked_by,omitempty"`
	Error          *string         `json:"error,omitempty"`
	Result         *string         `json:"result,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`

	// Seq is assigned by storage at enqueue time and breaks FIFO ties
	// within a priority rank.
	Seq uint64 `json:"seq"`
}

// Status is a point-in-time snapshot of queue state. It is not
// transactionally consistent with concurrent mutation; use it for
// observability, never for correctness decisions.
type Status struct {
	Waiting   int  `json:"waiting"`
	Active    int  `json:"active"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Delayed   int  `json:"delayed"`
	Paused    bool `json:"paused"`
}
