package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStorage is a PostgreSQL-backed Storage. Claim exclusivity rides on
// FOR UPDATE SKIP LOCKED, so multiple worker processes can share one table.
type PGStorage struct {
	pool *pgxpool.Pool
}

// NewPGStorage creates a Postgres job storage on top of an existing pool.
func NewPGStorage(pool *pgxpool.Pool) (*PGStorage, error) {
	if pool == nil {
		return nil, errors.New("queue: pgx pool cannot be nil")
	}
	return &PGStorage{pool: pool}, nil
}

const jobColumns = `id, notification_id, payload, priority, attempts_made, max_attempts,
	state, run_at, locked_until, locked_by, error, result, processed_at, enqueued_at, seq`

func (s *PGStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO queue_jobs (
			id, notification_id, payload, priority, attempts_made, max_attempts, state, run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq, enqueued_at`,
		job.ID, job.NotificationID, []byte(job.Payload), job.Priority,
		job.AttemptsMade, job.MaxAttempts, string(job.State), job.RunAt,
	)
	if err := row.Scan(&job.Seq, &job.EnqueuedAt); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PGStorage) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM queue_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PGStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE queue_jobs SET
			state = 'active',
			locked_until = now() + $2,
			locked_by = $1,
			attempts_made = attempts_made + 1
		WHERE id = (
			SELECT id FROM queue_jobs
			WHERE (state = 'waiting' OR state = 'delayed') AND run_at <= now()
			ORDER BY priority DESC, seq ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		workerID, lease,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (s *PGStorage) CompleteJob(ctx context.Context, id uuid.UUID, result string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs SET
			state = 'completed',
			result = $2,
			processed_at = now(),
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $1 AND state = 'active'`,
		id, result,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return err
		}
		// Repeated Complete is a no-op; the first result and processed_at
		// stay untouched.
		if job.State == StateCompleted {
			return nil
		}
		return ErrInvalidJobState
	}
	return nil
}

func (s *PGStorage) RescheduleJob(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs SET
			state = 'delayed',
			error = $2,
			run_at = $3,
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`,
		id, errMsg, runAt,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissing(ctx, id)
	}
	return nil
}

func (s *PGStorage) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs SET
			state = 'failed',
			error = $2,
			processed_at = now(),
			locked_until = NULL,
			locked_by = NULL
		WHERE id = $1 AND state NOT IN ('completed', 'failed')`,
		id, errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissing(ctx, id)
	}
	return nil
}

func (s *PGStorage) RequeueJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE queue_jobs SET
			state = 'waiting',
			run_at = now(),
			processed_at = NULL
		WHERE id = $1
		  AND state IN ('failed', 'delayed')
		  AND attempts_made < max_attempts`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish "not found" from "budget exhausted / wrong state".
	if _, err := s.GetJob(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *PGStorage) ReapExpired(ctx context.Context, now time.Time) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE queue_jobs SET
			state = 'waiting',
			locked_until = NULL,
			locked_by = NULL
		WHERE state = 'active' AND locked_until < $1
		RETURNING `+jobColumns,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reap expired jobs: %w", err)
	}
	defer rows.Close()

	var reaped []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reaped job: %w", err)
		}
		reaped = append(reaped, *job)
	}
	return reaped, rows.Err()
}

func (s *PGStorage) Counts(ctx context.Context) (Status, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM queue_jobs GROUP BY state`)
	if err != nil {
		return Status{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	var status Status
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Status{}, err
		}
		switch State(state) {
		case StateWaiting:
			status.Waiting = count
		case StateActive:
			status.Active = count
		case StateCompleted:
			status.Completed = count
		case StateFailed:
			status.Failed = count
		case StateDelayed:
			status.Delayed = count
		}
	}
	return status, rows.Err()
}

func (s *PGStorage) Prune(ctx context.Context, keepCompleted, keepFailed int) error {
	for state, keep := range map[string]int{"completed": keepCompleted, "failed": keepFailed} {
		_, err := s.pool.Exec(ctx, `
			DELETE FROM queue_jobs
			WHERE state = $1 AND id NOT IN (
				SELECT id FROM queue_jobs WHERE state = $1
				ORDER BY processed_at DESC NULLS LAST
				LIMIT $2
			)`,
			state, keep,
		)
		if err != nil {
			return fmt.Errorf("failed to prune %s jobs: %w", state, err)
		}
	}
	return nil
}

func (s *PGStorage) Clean(ctx context.Context, grace time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM queue_jobs
		WHERE state IN ('completed', 'failed') AND processed_at < now() - $1`,
		grace,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clean jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close is a no-op; the pgx pool lifecycle belongs to the caller.
func (s *PGStorage) Close() error {
	return nil
}

// classifyMissing maps a zero-row update to the precise sentinel.
func (s *PGStorage) classifyMissing(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return ErrInvalidJobState
}

func scanJob(row pgx.Row) (*Job, error) {
	var job Job
	var state string
	var payload []byte

	err := row.Scan(
		&job.ID, &job.NotificationID, &payload, &job.Priority, &job.AttemptsMade,
		&job.MaxAttempts, &state, &job.RunAt, &job.LockedUntil, &job.LockedBy,
		&job.Error, &job.Result, &job.ProcessedAt, &job.EnqueuedAt, &job.Seq,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = payload
	job.State = State(state)
	return &job, nil
}
