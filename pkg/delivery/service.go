package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/notifykit/notifykit/pkg/logger"
	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
	"github.com/notifykit/notifykit/pkg/worker"
)

// Service is the explicitly constructed delivery pipeline: record store,
// queue, and worker pool held as dependencies rather than package state, so
// tests can run isolated instances side by side.
type Service struct {
	store notification.Store
	queue *queue.Queue
	pool  *worker.Pool
	log   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires the delivery pipeline together.
func NewService(store notification.Store, q *queue.Queue, pool *worker.Pool, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("delivery: record store cannot be nil")
	}
	if q == nil {
		return nil, errors.New("delivery: queue cannot be nil")
	}
	if pool == nil {
		return nil, errors.New("delivery: worker pool cannot be nil")
	}

	s := &Service{
		store: store,
		queue: q,
		pool:  pool,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitInput is a notification submission.
type SubmitInput struct {
	UserID      string                `json:"user_id"`
	Channel     notification.Channel  `json:"channel"`
	Subject     string                `json:"subject,omitempty"`
	Message     string                `json:"message"`
	Recipient   string                `json:"recipient,omitempty"`
	Priority    notification.Priority `json:"priority,omitempty"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
	MaxAttempts int                   `json:"max_attempts,omitempty"`
}

// Submit validates the input, persists a pending record, and enqueues its
// delivery job. The response reports queued immediately; delivery failures
// are observable only by polling the record later.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*notification.Record, error) {
	if input.Priority == "" {
		input.Priority = notification.PriorityMedium
	}
	if input.MaxAttempts == 0 {
		input.MaxAttempts = notification.DefaultMaxAttempts
	}

	record := notification.Record{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Channel:     input.Channel,
		Subject:     input.Subject,
		Message:     input.Message,
		Recipient:   input.Recipient,
		Status:      notification.StatusPending,
		Priority:    input.Priority,
		Metadata:    input.Metadata,
		MaxAttempts: input.MaxAttempts,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}

	jobID, err := s.queue.Enqueue(ctx, record.ID, record,
		queue.WithPriority(record.Priority.Rank()),
		queue.WithMaxAttempts(record.MaxAttempts),
	)
	if err != nil {
		// Surfaced, not swallowed: the caller decides whether to retry the
		// submission. The pending record stays behind for diagnostics.
		s.log.LogAttrs(ctx, slog.LevelError, "failed to enqueue notification",
			logger.NotificationID(record.ID), logger.Error(err))
		return nil, err
	}

	queued := notification.StatusQueued
	updated, err := s.store.Update(ctx, record.ID, notification.Patch{
		Status: &queued,
		JobID:  &jobID,
	})
	if err != nil {
		return nil, err
	}

	s.log.LogAttrs(ctx, slog.LevelInfo, "notification queued",
		logger.NotificationID(record.ID),
		logger.JobID(jobID),
		logger.UserID(record.UserID),
		logger.Channel(string(record.Channel)),
	)
	return updated, nil
}

// Get returns a notification record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*notification.Record, error) {
	return s.store.Get(ctx, id)
}

// List returns records matching the filter, paginated.
func (s *Service) List(ctx context.Context, f notification.Filter, opts notification.ListOptions) ([]notification.Record, error) {
	return s.store.Find(ctx, f, opts)
}

// Count returns the number of records matching the filter.
func (s *Service) Count(ctx context.Context, f notification.Filter) (int, error) {
	return s.store.CountBy(ctx, f)
}

// QueueStatus returns a point-in-time snapshot of queue counts.
func (s *Service) QueueStatus(ctx context.Context) (queue.Status, error) {
	return s.queue.Status(ctx)
}

// PauseQueue stops dequeuing globally; active jobs still complete.
func (s *Service) PauseQueue() { s.queue.Pause() }

// ResumeQueue restores dequeuing.
func (s *Service) ResumeQueue() { s.queue.Resume() }

// RetryJob re-enters a failed job still under its attempt budget. Returns
// false when attempts are exhausted.
func (s *Service) RetryJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	return s.queue.Retry(ctx, jobID)
}

// CleanQueue removes terminal jobs older than the grace period.
func (s *Service) CleanQueue(ctx context.Context, grace time.Duration) (int, error) {
	return s.queue.Clean(ctx, grace)
}

// Start launches the worker pool and the event reconciler.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start()
	go s.reconcileEvents(ctx)
}

// Run executes the pipeline until ctx is cancelled, then shuts down.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.pool.Run(gctx)
	})
	g.Go(func() error {
		s.reconcileEvents(gctx)
		return nil
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := s.queue.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown drains the worker pool within the ctx grace period, then stops
// the queue and releases its storage.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.pool.Stop(ctx); err != nil {
		s.log.LogAttrs(ctx, slog.LevelWarn, "worker pool not fully drained", logger.Error(err))
	}
	return s.queue.Shutdown(ctx)
}

// reconcileEvents watches queue lifecycle events and repairs records left
// behind by out-of-band terminal failures: a stalled job that exhausts its
// budget fails inside the queue's reaper, where no worker is holding the
// record to mark it failed.
func (s *Service) reconcileEvents(ctx context.Context) {
	sub := s.queue.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Receive(ctx):
			if !ok {
				return
			}
			if msg.Data.Type != queue.EventFailed {
				continue
			}
			s.markFailedIfPending(ctx, msg.Data)
		}
	}
}

func (s *Service) markFailedIfPending(ctx context.Context, event queue.Event) {
	record, err := s.store.Get(ctx, event.NotificationID)
	if err != nil {
		if !errors.Is(err, notification.ErrNotFound) {
			s.log.LogAttrs(ctx, slog.LevelError, "failed to load record for reconciliation",
				logger.NotificationID(event.NotificationID), logger.Error(err))
		}
		return
	}
	if record.Status.Terminal() {
		return
	}

	now := time.Now()
	failed := notification.StatusFailed
	errMsg := event.Error
	if errMsg == "" {
		errMsg = "delivery failed"
	}
	if _, err := s.store.Update(ctx, record.ID, notification.Patch{
		Status:       &failed,
		FailedAt:     &now,
		ErrorMessage: &errMsg,
	}); err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "failed to reconcile record status",
			logger.NotificationID(record.ID), logger.Error(err))
		return
	}

	s.log.LogAttrs(ctx, slog.LevelWarn, "record reconciled to failed from queue event",
		logger.NotificationID(record.ID),
		logger.JobID(event.JobID),
	)
}
