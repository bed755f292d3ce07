package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/queue"
)

type jobPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
}

func newTestQueue(t *testing.T, opts ...queue.Option) *queue.Queue {
	t.Helper()

	q, err := queue.New(queue.NewMemoryStorage(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, q.Shutdown(ctx))
	})
	return q
}

func TestQueue_New(t *testing.T) {
	t.Parallel()

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()

		_, err := queue.New(nil)
		assert.ErrorIs(t, err, queue.ErrStorageNil)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		q := newTestQueue(t)
		status, err := q.Status(context.Background())
		require.NoError(t, err)
		assert.Zero(t, status.Waiting)
		assert.False(t, status.Paused)
	})
}

func TestQueue_Enqueue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()

		q := newTestQueue(t)
		jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{Channel: "email", Recipient: "a@b.co"})
		require.NoError(t, err)

		job, err := q.GetJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, queue.RankMedium, job.Priority)
		assert.Equal(t, 3, job.MaxAttempts)
		assert.Equal(t, queue.StateWaiting, job.State)
		assert.Zero(t, job.AttemptsMade)
		assert.JSONEq(t, `{"channel":"email","recipient":"a@b.co"}`, string(job.Payload))
	})

	t.Run("rejects bad options", func(t *testing.T) {
		t.Parallel()

		q := newTestQueue(t)
		_, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithPriority(7))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)

		_, err = q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithMaxAttempts(0))
		assert.ErrorIs(t, err, queue.ErrInvalidMaxAttempts)

		_, err = q.Enqueue(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, queue.ErrPayloadNil)
	})

	t.Run("delayed job not claimable before run_at", func(t *testing.T) {
		t.Parallel()

		q := newTestQueue(t)
		_, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithDelay(time.Hour))
		require.NoError(t, err)

		_, err = q.Dequeue(ctx, uuid.New())
		assert.ErrorIs(t, err, queue.ErrNoJobAvailable)

		status, err := q.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, status.Waiting)
	})
}

func TestQueue_PriorityBeforeFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t)

	lowID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithPriority(queue.RankLow))
	require.NoError(t, err)
	medID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithPriority(queue.RankMedium))
	require.NoError(t, err)
	highID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithPriority(queue.RankHigh))
	require.NoError(t, err)

	workerID := uuid.New()
	for _, want := range []uuid.UUID{highID, medID, lowID} {
		job, err := q.Dequeue(ctx, workerID)
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
		require.NoError(t, q.Complete(ctx, job.ID, "sent"))
	}
}

func TestQueue_CompleteIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t)

	jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{})
	require.NoError(t, err)

	_, err = q.Dequeue(ctx, uuid.New())
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, jobID, "sent"))
	require.NoError(t, q.Complete(ctx, jobID, "sent"))

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateCompleted, job.State)
}

func TestQueue_FailReschedulesWithBackoff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, queue.WithBackoff(queue.BackoffPolicy{
		Kind:      queue.BackoffExponential,
		BaseDelay: 2 * time.Second,
	}))

	jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithMaxAttempts(3))
	require.NoError(t, err)

	// First failed attempt: rescheduled ~2s out.
	before := time.Now()
	_, err = q.Dequeue(ctx, uuid.New())
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, jobID, errors.New("smtp timeout")))

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateDelayed, job.State)
	firstDelay := job.RunAt.Sub(before)
	assert.GreaterOrEqual(t, firstDelay, 2*time.Second)
	assert.Less(t, firstDelay, 3*time.Second)

	// Second failed attempt: delay doubles.
	require.NoError(t, q.Fail(ctx, jobID, errors.New("smtp timeout")))
	job, err = q.GetJob(ctx, jobID)
	require.NoError(t, err)
	secondDelay := job.RunAt.Sub(before)
	assert.GreaterOrEqual(t, secondDelay, 4*time.Second)
}

func TestQueue_FailExhaustsBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t)

	jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithMaxAttempts(1))
	require.NoError(t, err)

	_, err = q.Dequeue(ctx, uuid.New())
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, jobID, errors.New("smtp timeout")))

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Equal(t, "smtp timeout", *job.Error)

	// The attempt budget is spent; Retry refuses.
	requeued, err := q.Retry(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, requeued)
}

func TestQueue_DiscardSkipsBackoff(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t)

	jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithMaxAttempts(5))
	require.NoError(t, err)

	_, err = q.Dequeue(ctx, uuid.New())
	require.NoError(t, err)

	// Non-retryable failure goes terminal even with budget left.
	require.NoError(t, q.Discard(ctx, jobID, errors.New("invalid recipient")))

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateFailed, job.State)
	assert.Equal(t, 1, job.AttemptsMade)
}

func TestQueue_PauseResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t)

	jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{})
	require.NoError(t, err)

	q.Pause()

	_, err = q.Dequeue(ctx, uuid.New())
	assert.ErrorIs(t, err, queue.ErrNoJobAvailable)

	// Enqueue keeps working while paused.
	_, err = q.Enqueue(ctx, uuid.New(), jobPayload{})
	require.NoError(t, err)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Paused)
	assert.Equal(t, 2, status.Waiting)

	q.Resume()

	job, err := q.Dequeue(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
}

func TestQueue_StalledJobReaped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t,
		queue.WithLockLease(20*time.Millisecond),
		queue.WithReapInterval(10*time.Millisecond),
	)

	events := q.Subscribe(ctx)

	jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{}, queue.WithMaxAttempts(2))
	require.NoError(t, err)

	// Claim and never finish, simulating a crashed worker.
	_, err = q.Dequeue(ctx, uuid.New())
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	var stalled bool
	for !stalled {
		select {
		case msg, ok := <-events.Receive(ctx):
			require.True(t, ok)
			if msg.Data.Type == queue.EventStalled {
				assert.Equal(t, jobID, msg.Data.JobID)
				stalled = true
			}
		case <-deadline:
			t.Fatal("stalled event not observed")
		}
	}

	// The reaped attempt counts against the budget, so the job is
	// rescheduled rather than terminally failed.
	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StateDelayed, job.State)
	assert.Equal(t, 1, job.AttemptsMade)
}

func TestQueue_RetentionBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := newTestQueue(t, queue.WithRetention(3, 3))
	workerID := uuid.New()

	for i := 0; i < 6; i++ {
		jobID, err := q.Enqueue(ctx, uuid.New(), jobPayload{})
		require.NoError(t, err)
		_, err = q.Dequeue(ctx, workerID)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, jobID, "sent"))
	}

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Completed)
}

func TestQueue_ShutdownRejectsWork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q, err := queue.New(queue.NewMemoryStorage())
	require.NoError(t, err)

	require.NoError(t, q.Shutdown(ctx))
	require.NoError(t, q.Shutdown(ctx)) // idempotent

	_, err = q.Enqueue(ctx, uuid.New(), jobPayload{})
	assert.ErrorIs(t, err, queue.ErrQueueClosed)

	_, err = q.Dequeue(ctx, uuid.New())
	assert.ErrorIs(t, err, queue.ErrQueueClosed)
}
