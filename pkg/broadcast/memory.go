package broadcast

import (
	"context"
	"sync"
)

type memorySubscriber[T any] struct {
	ch     chan Message[T]
	closed bool
	mu     sync.RWMutex
}

func (s *memorySubscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *memorySubscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// send attempts a non-blocking delivery. Returns false when the subscriber is
// closed or its buffer is full.
func (s *memorySubscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// MemoryHub is an in-process Broadcaster. All methods are safe for concurrent
// use. Subscribers that fall behind lose messages and are detached.
type MemoryHub[T any] struct {
	subs       map[*memorySubscriber[T]]struct{}
	bufferSize int
	closed     bool
	mu         sync.RWMutex
	cleanupWg  sync.WaitGroup
}

// NewMemoryHub creates an in-memory broadcaster. Each subscriber gets a
// buffered channel of the given size; a minimum of 1 is enforced so sends
// stay non-blocking.
func NewMemoryHub[T any](bufferSize int) *MemoryHub[T] {
	return &MemoryHub[T]{
		subs:       make(map[*memorySubscriber[T]]struct{}),
		bufferSize: max(bufferSize, 1),
	}
}

func (h *MemoryHub[T]) Subscribe(ctx context.Context) Subscriber[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &memorySubscriber[T]{ch: make(chan Message[T], h.bufferSize)}
	if h.closed {
		_ = sub.Close()
		return sub
	}
	h.subs[sub] = struct{}{}

	if ctx.Done() != nil {
		h.cleanupWg.Add(1)
		go func() {
			defer h.cleanupWg.Done()
			<-ctx.Done()
			h.detach(sub)
		}()
	}
	return sub
}

func (h *MemoryHub[T]) Publish(ctx context.Context, msg Message[T]) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil
	}
	for sub := range h.subs {
		if !sub.send(msg) {
			// Detach asynchronously so a stuck consumer cannot hold the
			// read lock path hostage.
			go h.detach(sub)
		}
	}
	return nil
}

func (h *MemoryHub[T]) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for sub := range h.subs {
		_ = sub.Close()
	}
	clear(h.subs)
	h.mu.Unlock()

	h.cleanupWg.Wait()
	return nil
}

func (h *MemoryHub[T]) detach(sub *memorySubscriber[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	_ = sub.Close()
}
