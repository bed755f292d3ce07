package notification

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies the delivery channel of a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in-app"
)

// Valid reports whether the channel is one of the supported set.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// Priority represents delivery priority. Higher ranks are served first.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether the priority is one of the supported set.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank maps priority to its scheduling rank: low=1, medium=2, high=3.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

// Status is the lifecycle state of a notification record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Transitions are monotonic; processing may re-enter itself on retry.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusQueued
	case StatusQueued:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusSent || next == StatusFailed
	default:
		return false
	}
}

// DefaultMaxAttempts bounds delivery attempts when the caller does not set a limit.
const DefaultMaxAttempts = 3

// Record is the persisted notification entity. The record store is the
// source of truth for delivery status; the queue job only references it.
type Record struct {
	ID           uuid.UUID         `json:"id"`
	UserID       string            `json:"user_id"`
	Channel      Channel           `json:"channel"`
	Subject      string            `json:"subject,omitempty"`
	Message      string            `json:"message"`
	Recipient    string            `json:"recipient,omitempty"`
	Status       Status            `json:"status"`
	Priority     Priority          `json:"priority"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	FailedAt     *time.Time        `json:"failed_at,omitempty"`
	JobID        *uuid.UUID        `json:"job_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Validate enforces creation-time requirements. Requiredness of subject and
// recipient depends on the channel and is never re-checked after creation.
func (r *Record) Validate() error {
	errs := ValidationError{}

	if r.UserID == "" {
		errs.Add("user_id", "user id is required")
	}
	if r.Message == "" {
		errs.Add("message", "message is required")
	}
	if !r.Channel.Valid() {
		errs.Add("channel", "channel must be one of: email, sms, in-app")
	}
	if !r.Priority.Valid() {
		errs.Add("priority", "priority must be one of: low, medium, high")
	}
	if r.MaxAttempts < 1 {
		errs.Add("max_attempts", "max attempts must be at least 1")
	}

	switch r.Channel {
	case ChannelEmail:
		if r.Subject == "" {
			errs.Add("subject", "subject is required for email notifications")
		}
		if r.Recipient == "" {
			errs.Add("recipient", "recipient is required for email notifications")
		}
	case ChannelSMS:
		if r.Recipient == "" {
			errs.Add("recipient", "recipient is required for sms notifications")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
