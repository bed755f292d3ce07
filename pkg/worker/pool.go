package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/notifykit/notifykit/pkg/logger"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
	"github.com/notifykit/notifykit/pkg/sender"
)

// Dispatcher routes a notification to its channel sender.
type Dispatcher interface {
	Dispatch(ctx context.Context, record *notification.Record) (*sender.Receipt, error)
}

// Pool is a fixed-size set of concurrent workers draining the queue. Each
// worker resolves the job's notification record, dispatches it, and
// reconciles the outcome into the record store; scheduling decisions stay
// with the queue.
type Pool struct {
	queue  *queue.Queue
	store  notification.Store
	router Dispatcher
	log    *slog.Logger

	size         int
	pollInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolSize sets the number of concurrent workers. Default is 5.
func WithPoolSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.size = n
		}
	}
}

// WithPollInterval sets the idle wait between empty dequeues.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(log *slog.Logger) PoolOption {
	return func(p *Pool) {
		if log != nil {
			p.log = log
		}
	}
}

// NewPool creates a worker pool. It does not start any workers; call Start
// or Run.
func NewPool(q *queue.Queue, store notification.Store, router Dispatcher, opts ...PoolOption) (*Pool, error) {
	if q == nil {
		return nil, errors.New("worker: queue cannot be nil")
	}
	if store == nil {
		return nil, errors.New("worker: record store cannot be nil")
	}
	if router == nil {
		return nil, errors.New("worker: dispatcher cannot be nil")
	}

	p := &Pool{
		queue:        q,
		store:        store,
		router:       router,
		log:          slog.Default(),
		size:         5,
		pollInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the workers in the background. Stop drains them.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		workerID := uuid.New()
		go func() {
			defer p.wg.Done()
			p.workLoop(ctx, workerID)
		}()
	}
	p.log.Info("worker pool started", slog.Int("size", p.size))
}

// Stop signals the workers and waits for in-flight jobs to finish, or until
// ctx expires, in which case remaining work is abandoned to the queue's
// stalled-job recovery.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain interrupted: %w", ctx.Err())
	}
}

// Run executes the pool under an errgroup-compatible contract: it blocks
// until ctx is cancelled, then drains the workers.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.size; i++ {
		workerID := uuid.New()
		g.Go(func() error {
			p.workLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) workLoop(ctx context.Context, workerID uuid.UUID) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, workerID)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			if !errors.Is(err, queue.ErrNoJobAvailable) {
				p.log.LogAttrs(ctx, slog.LevelError, "dequeue failed",
					logger.WorkerID(workerID), logger.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		p.process(ctx, workerID, job)
	}
}

// process executes one job end to end. Panics in dispatch are contained and
// treated as retryable failures.
func (p *Pool) process(ctx context.Context, workerID uuid.UUID, job *queue.Job) {
	record, err := p.store.Get(ctx, job.NotificationID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			// The job references a record that no longer exists. Abandon it;
			// retrying cannot help.
			p.log.LogAttrs(ctx, slog.LevelWarn, "job references missing record, abandoning",
				logger.WorkerID(workerID),
				logger.JobID(job.ID),
				logger.NotificationID(job.NotificationID),
			)
			if err := p.queue.Complete(ctx, job.ID, "abandoned: record not found"); err != nil {
				p.log.LogAttrs(ctx, slog.LevelError, "failed to abandon job", logger.JobID(job.ID), logger.Error(err))
			}
			return
		}

		p.log.LogAttrs(ctx, slog.LevelError, "failed to load record",
			logger.JobID(job.ID), logger.Error(err))
		p.failJob(ctx, job, err)
		return
	}

	// Guards against duplicate delivery when a job is retried after a late,
	// successful prior attempt.
	if record.Status == notification.StatusSent {
		p.log.LogAttrs(ctx, slog.LevelInfo, "already sent, skipping",
			logger.WorkerID(workerID),
			logger.NotificationID(record.ID),
		)
		if err := p.queue.Complete(ctx, job.ID, "already_sent"); err != nil {
			p.log.LogAttrs(ctx, slog.LevelError, "failed to complete job", logger.JobID(job.ID), logger.Error(err))
		}
		return
	}

	// Persist the attempt before dispatching so a crash mid-send is
	// recorded against the budget.
	processing := notification.StatusProcessing
	record, err = p.store.Update(ctx, record.ID, notification.Patch{
		Status:            &processing,
		IncrementAttempts: true,
	})
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to mark record processing",
			logger.NotificationID(job.NotificationID), logger.Error(err))
		p.failJob(ctx, job, err)
		return
	}

	receipt, err := p.dispatch(ctx, record)
	if err != nil {
		p.handleFailure(ctx, workerID, job, record, err)
		return
	}

	now := time.Now()
	sent := notification.StatusSent
	if _, err := p.store.Update(ctx, record.ID, notification.Patch{
		Status: &sent,
		SentAt: &now,
	}); err != nil {
		// The send happened; failing the job now would cause a duplicate.
		p.log.LogAttrs(ctx, slog.LevelError, "sent but failed to persist status",
			logger.NotificationID(record.ID), logger.Error(err))
	}

	result := "sent"
	if receipt != nil && receipt.ProviderMessageID != "" {
		result = receipt.ProviderMessageID
	}
	if err := p.queue.Complete(ctx, job.ID, result); err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to complete job", logger.JobID(job.ID), logger.Error(err))
	}

	p.log.LogAttrs(ctx, slog.LevelInfo, "notification delivered",
		logger.WorkerID(workerID),
		logger.NotificationID(record.ID),
		logger.Channel(string(record.Channel)),
		logger.Attempt(record.Attempts),
	)
}

// dispatch invokes the router with panic containment.
func (p *Pool) dispatch(ctx context.Context, record *notification.Record) (receipt *sender.Receipt, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return p.router.Dispatch(ctx, record)
}

// handleFailure reconciles a failed dispatch: non-retryable errors and
// exhausted budgets terminate the record as failed; otherwise the record
// stays processing and the queue reschedules with backoff.
func (p *Pool) handleFailure(ctx context.Context, workerID uuid.UUID, job *queue.Job, record *notification.Record, cause error) {
	retryable := sender.IsRetryable(cause)
	finalAttempt := record.Attempts >= record.MaxAttempts

	p.log.LogAttrs(ctx, slog.LevelWarn, "delivery attempt failed",
		logger.WorkerID(workerID),
		logger.NotificationID(record.ID),
		logger.Channel(string(record.Channel)),
		logger.Attempt(record.Attempts),
		slog.Bool("retryable", retryable),
		logger.Error(cause),
	)

	if !retryable || finalAttempt {
		now := time.Now()
		failed := notification.StatusFailed
		errMsg := cause.Error()
		if _, err := p.store.Update(ctx, record.ID, notification.Patch{
			Status:       &failed,
			FailedAt:     &now,
			ErrorMessage: &errMsg,
		}); err != nil {
			p.log.LogAttrs(ctx, slog.LevelError, "failed to mark record failed",
				logger.NotificationID(record.ID), logger.Error(err))
		}
	}

	if !retryable {
		if err := p.queue.Discard(ctx, job.ID, cause); err != nil {
			p.log.LogAttrs(ctx, slog.LevelError, "failed to discard job", logger.JobID(job.ID), logger.Error(err))
		}
		return
	}
	p.failJob(ctx, job, cause)
}

func (p *Pool) failJob(ctx context.Context, job *queue.Job, cause error) {
	if err := p.queue.Fail(ctx, job.ID, cause); err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to report job failure",
			logger.JobID(job.ID), logger.Error(err))
	}
}
