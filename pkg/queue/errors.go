package queue

import "errors"

var (
	// ErrStorageNil is returned when a nil storage is provided.
	ErrStorageNil = errors.New("queue storage cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrQueueUnavailable is returned when the backing store cannot accept writes.
	ErrQueueUnavailable = errors.New("queue is unavailable")

	// ErrQueueClosed is returned for operations on a queue after Shutdown.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrNoJobAvailable signals an empty dequeue; it is normal, not a failure.
	ErrNoJobAvailable = errors.New("no job available to claim")

	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidJobState is returned when a transition is requested from an incompatible state.
	ErrInvalidJobState = errors.New("job is not in a valid state for this transition")

	// ErrInvalidPriority is returned when the priority rank is outside 1..3.
	ErrInvalidPriority = errors.New("priority rank must be between 1 and 3")

	// ErrInvalidMaxAttempts is returned when the attempt budget is below 1.
	ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")
)
