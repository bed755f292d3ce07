package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-memory Storage implementation for tests and local
// development. The single mutex gives ClaimJob its exclusivity guarantee.
type MemoryStorage struct {
	jobs map[uuid.UUID]*Job
	seq  uint64
	mu   sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory job storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{jobs: make(map[uuid.UUID]*Job)}
}

func (ms *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return ErrInvalidJobState
	}

	ms.seq++
	job.Seq = ms.seq
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	stored := *job
	ms.jobs[job.ID] = &stored
	return nil
}

func (ms *MemoryStorage) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	job, ok := ms.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (ms *MemoryStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lease time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Job
	for _, job := range ms.jobs {
		if !claimable(job, now) {
			continue
		}
		// Priority rank first, enqueue order second.
		if best == nil || job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.Seq < best.Seq) {
			best = job
		}
	}
	if best == nil {
		return nil, ErrNoJobAvailable
	}

	lockedUntil := now.Add(lease)
	best.State = StateActive
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID
	best.AttemptsMade++

	cp := *best
	return &cp, nil
}

func claimable(job *Job, now time.Time) bool {
	switch job.State {
	case StateWaiting:
		return !job.RunAt.After(now)
	case StateDelayed:
		return !job.RunAt.After(now)
	}
	return false
}

func (ms *MemoryStorage) CompleteJob(ctx context.Context, id uuid.UUID, result string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.State == StateCompleted {
		return nil
	}
	if job.State != StateActive {
		return ErrInvalidJobState
	}

	now := time.Now()
	job.State = StateCompleted
	job.Result = &result
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) RescheduleJob(ctx context.Context, id uuid.UUID, errMsg string, runAt time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.State.Terminal() {
		return ErrInvalidJobState
	}

	job.State = StateDelayed
	job.Error = &errMsg
	job.RunAt = runAt
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.State.Terminal() {
		return ErrInvalidJobState
	}

	now := time.Now()
	job.State = StateFailed
	job.Error = &errMsg
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil
	return nil
}

func (ms *MemoryStorage) RequeueJob(ctx context.Context, id uuid.UUID) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if job.State != StateFailed && job.State != StateDelayed {
		return false, ErrInvalidJobState
	}
	if job.AttemptsMade >= job.MaxAttempts {
		return false, nil
	}

	job.State = StateWaiting
	job.RunAt = time.Now()
	job.ProcessedAt = nil
	return true, nil
}

func (ms *MemoryStorage) ReapExpired(ctx context.Context, now time.Time) ([]Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var reaped []Job
	for _, job := range ms.jobs {
		if job.State != StateActive || job.LockedUntil == nil || !job.LockedUntil.Before(now) {
			continue
		}
		job.State = StateWaiting
		job.LockedUntil = nil
		job.LockedBy = nil
		reaped = append(reaped, *job)
	}
	return reaped, nil
}

func (ms *MemoryStorage) Counts(ctx context.Context) (Status, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var s Status
	for _, job := range ms.jobs {
		switch job.State {
		case StateWaiting:
			s.Waiting++
		case StateActive:
			s.Active++
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		case StateDelayed:
			s.Delayed++
		}
	}
	return s, nil
}

func (ms *MemoryStorage) Prune(ctx context.Context, keepCompleted, keepFailed int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.pruneState(StateCompleted, keepCompleted)
	ms.pruneState(StateFailed, keepFailed)
	return nil
}

// pruneState keeps only the newest n terminal jobs in the given state.
// Must be called with the mutex held.
func (ms *MemoryStorage) pruneState(state State, keep int) {
	var terminal []*Job
	for _, job := range ms.jobs {
		if job.State == state {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) <= keep {
		return
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].Seq > terminal[j].Seq
	})
	for _, job := range terminal[keep:] {
		delete(ms.jobs, job.ID)
	}
}

func (ms *MemoryStorage) Clean(ctx context.Context, grace time.Duration) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cutoff := time.Now().Add(-grace)
	removed := 0
	for id, job := range ms.jobs {
		if job.State.Terminal() && job.ProcessedAt != nil && job.ProcessedAt.Before(cutoff) {
			delete(ms.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (ms *MemoryStorage) Close() error {
	return nil
}
