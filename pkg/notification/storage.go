package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store handles notification record persistence. Update must apply the patch
// atomically per record so concurrent attempt increments are never lost.
type Store interface {
	// Create stores a new record.
	Create(ctx context.Context, rec Record) error

	// Get retrieves a record by id. Returns ErrNotFound when absent.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Update applies the patch to a record and returns the updated state.
	Update(ctx context.Context, id uuid.UUID, patch Patch) (*Record, error)

	// CountBy returns the number of records matching the filter.
	CountBy(ctx context.Context, f Filter) (int, error)

	// Find returns records matching the filter, paginated.
	Find(ctx context.Context, f Filter, opts ListOptions) ([]Record, error)
}

// Patch is a partial update of a record. Nil fields are left untouched.
type Patch struct {
	Status            *Status
	IncrementAttempts bool
	ErrorMessage      *string
	SentAt            *time.Time
	FailedAt          *time.Time
	JobID             *uuid.UUID
}

// Filter selects records by exact-match criteria; zero values match anything.
type Filter struct {
	UserID  string
	Channel Channel
	Status  Status
}

// ListOptions controls pagination and ordering of Find results.
type ListOptions struct {
	Limit       int  // 0 = no limit
	Offset      int
	NewestFirst bool // order by creation time descending
}
