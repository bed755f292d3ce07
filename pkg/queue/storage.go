package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Storage encapsulates job persistence. Implementations must make ClaimJob
// mutually exclusive: no two workers may ever hold the same job.
type Storage interface {
	// CreateJob persists a new job and assigns its FIFO sequence number.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by id. Returns ErrJobNotFound when absent.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// ClaimJob atomically hands the next eligible job (waiting, or delayed
	// and due) to the worker, moving it to active under a lock lease and
	// incrementing AttemptsMade. Eligibility is priority rank descending,
	// then enqueue order. Returns ErrNoJobAvailable when nothing is due.
	ClaimJob(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*Job, error)

	// CompleteJob moves an active job to completed. Idempotent when the job
	// is already completed.
	CompleteJob(ctx context.Context, id uuid.UUID, result string) error

	// RescheduleJob moves a non-terminal job to delayed with the given
	// retry time, recording the failure message and releasing the lock.
	RescheduleJob(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error

	// FailJob moves a non-terminal job to terminal failed.
	FailJob(ctx context.Context, id uuid.UUID, errMsg string) error

	// RequeueJob re-enters a failed or delayed job into waiting when its
	// attempt budget is not exhausted. Returns false otherwise.
	RequeueJob(ctx context.Context, id uuid.UUID) (bool, error)

	// ReapExpired releases active jobs whose lock lease has passed,
	// returning them to waiting. The released jobs are returned so the
	// queue can route them through its failure path.
	ReapExpired(ctx context.Context, now time.Time) ([]Job, error)

	// Counts returns the number of jobs per state.
	Counts(ctx context.Context) (Status, error)

	// Prune enforces terminal-state retention, keeping only the newest
	// keepCompleted completed and keepFailed failed jobs.
	Prune(ctx context.Context, keepCompleted, keepFailed int) error

	// Clean removes terminal jobs older than the grace period, returning
	// how many were removed.
	Clean(ctx context.Context, grace time.Duration) (int, error)

	// Close releases underlying resources.
	Close() error
}
