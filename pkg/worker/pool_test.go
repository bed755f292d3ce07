package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
	"github.com/notifykit/notifykit/pkg/sender"
	"github.com/notifykit/notifykit/pkg/worker"
)

// stubDispatcher lets tests script per-call outcomes.
type stubDispatcher struct {
	calls int64
	fn    func(record *notification.Record) (*sender.Receipt, error)
}

func (d *stubDispatcher) Dispatch(ctx context.Context, record *notification.Record) (*sender.Receipt, error) {
	atomic.AddInt64(&d.calls, 1)
	if d.fn != nil {
		return d.fn(record)
	}
	return &sender.Receipt{ProviderMessageID: "msg-1"}, nil
}

func (d *stubDispatcher) callCount() int64 {
	return atomic.LoadInt64(&d.calls)
}

type fixture struct {
	queue *queue.Queue
	store *notification.MemoryStore
	disp  *stubDispatcher
	pool  *worker.Pool
}

func newFixture(t *testing.T, disp *stubDispatcher) *fixture {
	t.Helper()

	q, err := queue.New(queue.NewMemoryStorage(),
		queue.WithBackoff(queue.BackoffPolicy{Kind: queue.BackoffExponential, BaseDelay: time.Millisecond}),
		queue.WithReapInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, q.Shutdown(ctx))
	})

	store := notification.NewMemoryStore()

	pool, err := worker.NewPool(q, store, disp,
		worker.WithPoolSize(2),
		worker.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	pool.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, pool.Stop(ctx))
	})

	return &fixture{queue: q, store: store, disp: disp, pool: pool}
}

// submit creates a queued record and its job, mirroring what the delivery
// service does on intake.
func (f *fixture) submit(t *testing.T, record notification.Record) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	record.Status = notification.StatusQueued
	require.NoError(t, f.store.Create(ctx, record))

	_, err := f.queue.Enqueue(ctx, record.ID, record,
		queue.WithPriority(record.Priority.Rank()),
		queue.WithMaxAttempts(record.MaxAttempts),
	)
	require.NoError(t, err)
	return record.ID
}

func emailRecord() notification.Record {
	return notification.Record{
		ID:          uuid.New(),
		UserID:      "u1",
		Channel:     notification.ChannelEmail,
		Subject:     "Hi",
		Message:     "Hello",
		Recipient:   "a@b.com",
		Priority:    notification.PriorityHigh,
		MaxAttempts: 3,
	}
}

func TestPool_DeliversSuccessfully(t *testing.T) {
	t.Parallel()

	f := newFixture(t, &stubDispatcher{})
	id := f.submit(t, emailRecord())

	require.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), id)
		return err == nil && rec.Status == notification.StatusSent
	}, 5*time.Second, 10*time.Millisecond)

	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	require.NotNil(t, rec.SentAt)
	assert.Nil(t, rec.FailedAt)
	assert.Equal(t, int64(1), f.disp.callCount())
}

func TestPool_AlreadySentShortCircuits(t *testing.T) {
	t.Parallel()

	disp := &stubDispatcher{}
	f := newFixture(t, disp)
	ctx := context.Background()

	record := emailRecord()
	now := time.Now()
	record.Status = notification.StatusSent
	record.SentAt = &now
	require.NoError(t, f.store.Create(ctx, record))

	jobID, err := f.queue.Enqueue(ctx, record.ID, record)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := f.queue.GetJob(ctx, jobID)
		return err == nil && job.State == queue.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	job, err := f.queue.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, "already_sent", *job.Result)
	assert.Zero(t, disp.callCount(), "sender must not be invoked for a sent record")
}

func TestPool_RetryableFailureExhaustsBudget(t *testing.T) {
	t.Parallel()

	disp := &stubDispatcher{fn: func(*notification.Record) (*sender.Receipt, error) {
		return nil, sender.Transient(errors.New("connection reset"))
	}}
	f := newFixture(t, disp)
	id := f.submit(t, emailRecord())

	require.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), id)
		return err == nil && rec.Status == notification.StatusFailed
	}, 10*time.Second, 10*time.Millisecond)

	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Attempts, "exactly maxAttempts attempts")
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "connection reset")
	require.NotNil(t, rec.FailedAt)
	assert.Nil(t, rec.SentAt)
	assert.Equal(t, int64(3), disp.callCount())
}

func TestPool_PermanentFailureSkipsRetries(t *testing.T) {
	t.Parallel()

	disp := &stubDispatcher{fn: func(*notification.Record) (*sender.Receipt, error) {
		return nil, sender.Permanent(errors.New("invalid recipient"))
	}}
	f := newFixture(t, disp)

	record := emailRecord()
	record.MaxAttempts = 5
	id := f.submit(t, record)

	require.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), id)
		return err == nil && rec.Status == notification.StatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts, "no retries for permanent failures")
	assert.Equal(t, int64(1), disp.callCount())
}

func TestPool_MissingRecordAbandonsJob(t *testing.T) {
	t.Parallel()

	disp := &stubDispatcher{}
	f := newFixture(t, disp)
	ctx := context.Background()

	jobID, err := f.queue.Enqueue(ctx, uuid.New(), map[string]string{"channel": "email"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := f.queue.GetJob(ctx, jobID)
		return err == nil && job.State == queue.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)

	job, err := f.queue.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.Equal(t, "abandoned: record not found", *job.Result)
	assert.Zero(t, disp.callCount())
}

func TestPool_PanickingSenderIsContained(t *testing.T) {
	t.Parallel()

	var calls int64
	disp := &stubDispatcher{fn: func(*notification.Record) (*sender.Receipt, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			panic("sender exploded")
		}
		return &sender.Receipt{ProviderMessageID: "msg-2"}, nil
	}}
	f := newFixture(t, disp)
	id := f.submit(t, emailRecord())

	require.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), id)
		return err == nil && rec.Status == notification.StatusSent
	}, 10*time.Second, 10*time.Millisecond)

	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Attempts)
}

func TestPool_AttemptsNeverExceedMax(t *testing.T) {
	t.Parallel()

	disp := &stubDispatcher{fn: func(*notification.Record) (*sender.Receipt, error) {
		return nil, sender.Transient(errors.New("flaky"))
	}}
	f := newFixture(t, disp)

	record := emailRecord()
	record.MaxAttempts = 2
	id := f.submit(t, record)

	require.Eventually(t, func() bool {
		rec, err := f.store.Get(context.Background(), id)
		return err == nil && rec.Status == notification.StatusFailed
	}, 10*time.Second, 10*time.Millisecond)

	// Give any stray retry a chance to fire, then confirm the bound held.
	time.Sleep(100 * time.Millisecond)
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.Attempts, rec.MaxAttempts)
	assert.Equal(t, 2, rec.Attempts)
}
