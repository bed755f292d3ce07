package broadcast

import "context"

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages published to a Broadcaster.
// Implementations must be safe for concurrent use.
type Subscriber[T any] interface {
	// Receive returns the channel delivering broadcast messages. The context
	// is unused by the in-memory implementation but kept so blocking adapters
	// (Redis, NATS) can respect cancellation.
	Receive(ctx context.Context) <-chan Message[T]

	// Close detaches the subscriber and closes its channel. Idempotent.
	Close() error
}

// Broadcaster fans a message out to all current subscribers. Implementations
// must drop messages for slow consumers instead of blocking the publisher.
type Broadcaster[T any] interface {
	// Subscribe registers a new subscriber. The subscription is torn down
	// automatically when ctx is cancelled.
	Subscribe(ctx context.Context) Subscriber[T]

	// Publish delivers msg to every active subscriber, best effort.
	Publish(ctx context.Context, msg Message[T]) error

	// Close shuts the broadcaster down and closes every subscriber.
	Close() error
}
