package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for development and tests.
// All patch application happens under one mutex, which gives the per-record
// atomic read-modify-write the worker pool relies on.
type MemoryStore struct {
	records map[uuid.UUID]*Record
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrAlreadyExists
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	stored := rec
	stored.Metadata = cloneMetadata(rec.Metadata)
	s.records[rec.ID] = &stored
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.IncrementAttempts {
		rec.Attempts++
	}
	if patch.ErrorMessage != nil {
		rec.ErrorMessage = patch.ErrorMessage
	}
	if patch.SentAt != nil {
		rec.SentAt = patch.SentAt
	}
	if patch.FailedAt != nil {
		rec.FailedAt = patch.FailedAt
	}
	if patch.JobID != nil {
		rec.JobID = patch.JobID
	}
	rec.UpdatedAt = time.Now()

	return copyRecord(rec), nil
}

func (s *MemoryStore) CountBy(ctx context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if matches(rec, f) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Find(ctx context.Context, f Filter, opts ListOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if matches(rec, f) {
			out = append(out, *copyRecord(rec))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if opts.NewestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Record{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func matches(rec *Record, f Filter) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.Channel != "" && rec.Channel != f.Channel {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	return true
}

func copyRecord(rec *Record) *Record {
	out := *rec
	out.Metadata = cloneMetadata(rec.Metadata)
	return &out
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
