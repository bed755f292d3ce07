package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/broadcast"
	"github.com/notifykit/notifykit/pkg/logger"
)

// Queue is a durable, priority-ordered, at-least-once job queue. Scheduling
// decisions (backoff, attempt budget, stalled recovery) are centralized here;
// storage implementations only persist state transitions.
type Queue struct {
	storage Storage
	backoff BackoffPolicy
	logger  *slog.Logger
	events  *broadcast.MemoryHub[Event]

	lockLease     time.Duration
	reapInterval  time.Duration
	keepCompleted int
	keepFailed    int

	paused atomic.Bool
	closed atomic.Bool

	reapCancel context.CancelFunc
	reapDone   chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff sets the retry backoff policy. Default is exponential with a
// 2s base.
func WithBackoff(policy BackoffPolicy) Option {
	return func(q *Queue) {
		if policy.BaseDelay > 0 {
			q.backoff = policy
		}
	}
}

// WithLockLease sets how long a claimed job stays locked before it is
// considered stalled.
func WithLockLease(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.lockLease = d
		}
	}
}

// WithReapInterval sets how often expired locks are checked.
func WithReapInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.reapInterval = d
		}
	}
}

// WithRetention bounds terminal-state storage growth.
func WithRetention(keepCompleted, keepFailed int) Option {
	return func(q *Queue) {
		if keepCompleted > 0 {
			q.keepCompleted = keepCompleted
		}
		if keepFailed > 0 {
			q.keepFailed = keepFailed
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.logger = log
		}
	}
}

// New creates a Queue and starts its stalled-job reaper in the background.
// Call Shutdown to stop it and release the storage.
func New(storage Storage, opts ...Option) (*Queue, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	q := &Queue{
		storage:       storage,
		backoff:       DefaultBackoff,
		logger:        slog.Default(),
		events:        broadcast.NewMemoryHub[Event](64),
		lockLease:     time.Minute,
		reapInterval:  5 * time.Second,
		keepCompleted: 100,
		keepFailed:    50,
		reapDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	reapCtx, cancel := context.WithCancel(context.Background())
	q.reapCancel = cancel
	go q.reapLoop(reapCtx)

	return q, nil
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority    int
	maxAttempts int
	delay       time.Duration
}

// WithPriority sets the job's priority rank (1..3, higher first).
func WithPriority(rank int) EnqueueOption {
	return func(o *enqueueOptions) { o.priority = rank }
}

// WithMaxAttempts sets the job's attempt budget.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) { o.maxAttempts = n }
}

// WithDelay makes the job claimable only after the given delay.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Enqueue admits a unit of work referencing a notification record. The
// payload snapshot is marshalled into the job so the first attempt avoids a
// record store read. Fails with ErrQueueUnavailable when the backing store
// cannot accept writes.
func (q *Queue) Enqueue(ctx context.Context, notificationID uuid.UUID, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if q.closed.Load() {
		return uuid.Nil, ErrQueueClosed
	}
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	options := &enqueueOptions{
		priority:    RankMedium,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.priority < RankLow || options.priority > RankHigh {
		return uuid.Nil, ErrInvalidPriority
	}
	if options.maxAttempts < 1 {
		return uuid.Nil, ErrInvalidMaxAttempts
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &Job{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Payload:        body,
		Priority:       options.priority,
		MaxAttempts:    options.maxAttempts,
		State:          StateWaiting,
		RunAt:          time.Now().Add(options.delay),
		EnqueuedAt:     time.Now(),
	}

	if err := q.storage.CreateJob(ctx, job); err != nil {
		return uuid.Nil, errors.Join(ErrQueueUnavailable, err)
	}
	return job.ID, nil
}

// Dequeue hands one eligible job to the worker, transitioning it to active
// under a lock lease and counting the attempt as started. Returns
// ErrNoJobAvailable when nothing is due or the queue is paused.
func (q *Queue) Dequeue(ctx context.Context, workerID uuid.UUID) (*Job, error) {
	if q.closed.Load() {
		return nil, ErrQueueClosed
	}
	if q.paused.Load() {
		return nil, ErrNoJobAvailable
	}
	return q.storage.ClaimJob(ctx, workerID, q.lockLease)
}

// Complete transitions an active job to completed. Idempotent when already
// completed.
func (q *Queue) Complete(ctx context.Context, jobID uuid.UUID, result string) error {
	job, err := q.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.State == StateCompleted {
		return nil
	}
	if err := q.storage.CompleteJob(ctx, jobID, result); err != nil {
		return err
	}

	q.publish(ctx, Event{
		Type:           EventCompleted,
		JobID:          jobID,
		NotificationID: job.NotificationID,
		At:             time.Now(),
	})
	q.prune(ctx)
	return nil
}

// Fail records a failed attempt. While the attempt budget holds, the job is
// rescheduled as delayed with backoff; otherwise it becomes terminally
// failed.
func (q *Queue) Fail(ctx context.Context, jobID uuid.UUID, cause error) error {
	job, err := q.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return q.failJob(ctx, job, cause)
}

// Discard transitions a job to terminal failed immediately, bypassing the
// backoff path. Used for non-retryable delivery errors.
func (q *Queue) Discard(ctx context.Context, jobID uuid.UUID, cause error) error {
	job, err := q.storage.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := q.storage.FailJob(ctx, jobID, cause.Error()); err != nil {
		return err
	}

	q.publish(ctx, Event{
		Type:           EventFailed,
		JobID:          jobID,
		NotificationID: job.NotificationID,
		Error:          cause.Error(),
		At:             time.Now(),
	})
	q.prune(ctx)
	return nil
}

func (q *Queue) failJob(ctx context.Context, job *Job, cause error) error {
	if job.AttemptsMade < job.MaxAttempts {
		delay := q.backoff.Delay(job.AttemptsMade)
		runAt := time.Now().Add(delay)

		if err := q.storage.RescheduleJob(ctx, job.ID, cause.Error(), runAt); err != nil {
			return err
		}
		q.logger.LogAttrs(ctx, slog.LevelInfo, "job rescheduled with backoff",
			logger.JobID(job.ID),
			logger.NotificationID(job.NotificationID),
			logger.Attempt(job.AttemptsMade),
			slog.Duration("delay", delay),
			logger.Error(cause),
		)
		return nil
	}

	if err := q.storage.FailJob(ctx, job.ID, cause.Error()); err != nil {
		return err
	}
	q.publish(ctx, Event{
		Type:           EventFailed,
		JobID:          job.ID,
		NotificationID: job.NotificationID,
		Error:          cause.Error(),
		At:             time.Now(),
	})
	q.prune(ctx)
	return nil
}

// Retry re-enters a failed or delayed job into waiting when its attempt
// budget allows. Returns false when attempts are exhausted.
func (q *Queue) Retry(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return q.storage.RequeueJob(ctx, jobID)
}

// GetJob retrieves a job by id.
func (q *Queue) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return q.storage.GetJob(ctx, jobID)
}

// Status returns a point-in-time snapshot of queue counts and the paused
// flag. Not consistent with concurrent mutation; observability only.
func (q *Queue) Status(ctx context.Context) (Status, error) {
	status, err := q.storage.Counts(ctx)
	if err != nil {
		return Status{}, err
	}
	status.Paused = q.paused.Load()
	return status, nil
}

// Pause stops dequeuing globally without losing queued state. Jobs already
// active keep running.
func (q *Queue) Pause() {
	q.paused.Store(true)
	q.logger.Info("queue paused")
}

// Resume restores dequeuing.
func (q *Queue) Resume() {
	q.paused.Store(false)
	q.logger.Info("queue resumed")
}

// Clean removes terminal jobs older than the grace period.
func (q *Queue) Clean(ctx context.Context, grace time.Duration) (int, error) {
	return q.storage.Clean(ctx, grace)
}

// Subscribe returns a stream of job lifecycle events. The subscription ends
// when ctx is cancelled.
func (q *Queue) Subscribe(ctx context.Context) broadcast.Subscriber[Event] {
	return q.events.Subscribe(ctx)
}

// Shutdown stops the reaper, closes the event stream, and releases the
// storage. In-flight jobs are the worker pool's responsibility to drain
// before calling Shutdown.
func (q *Queue) Shutdown(ctx context.Context) error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}

	q.reapCancel()
	select {
	case <-q.reapDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	_ = q.events.Close()
	return q.storage.Close()
}

// reapLoop periodically recovers jobs held past their lock lease. A reaped
// job is treated as a failed attempt, so crashed workers are recovered
// without manual intervention. If the original attempt actually completed
// after the lease expired this causes a duplicate send: delivery is
// at-least-once.
func (q *Queue) reapLoop(ctx context.Context) {
	defer close(q.reapDone)

	ticker := time.NewTicker(q.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.reapStalled(ctx)
		}
	}
}

func (q *Queue) reapStalled(ctx context.Context) {
	reaped, err := q.storage.ReapExpired(ctx, time.Now())
	if err != nil {
		q.logger.LogAttrs(ctx, slog.LevelError, "failed to reap stalled jobs", logger.Error(err))
		return
	}

	for i := range reaped {
		job := reaped[i]
		q.logger.LogAttrs(ctx, slog.LevelWarn, "stalled job recovered",
			logger.JobID(job.ID),
			logger.NotificationID(job.NotificationID),
			logger.Attempt(job.AttemptsMade),
		)
		q.publish(ctx, Event{
			Type:           EventStalled,
			JobID:          job.ID,
			NotificationID: job.NotificationID,
			At:             time.Now(),
		})

		if err := q.failJob(ctx, &job, errors.New("job stalled: lock lease expired")); err != nil {
			q.logger.LogAttrs(ctx, slog.LevelError, "failed to route stalled job through failure path",
				logger.JobID(job.ID),
				logger.Error(err),
			)
		}
	}
}

func (q *Queue) publish(ctx context.Context, event Event) {
	_ = q.events.Publish(ctx, broadcast.Message[Event]{Data: event})
}

func (q *Queue) prune(ctx context.Context) {
	if err := q.storage.Prune(ctx, q.keepCompleted, q.keepFailed); err != nil {
		q.logger.LogAttrs(ctx, slog.LevelWarn, "failed to prune terminal jobs", logger.Error(err))
	}
}
