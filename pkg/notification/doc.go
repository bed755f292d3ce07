// Package notification defines the notification record: its channels,
// priorities, the monotonic status lifecycle, creation-time validation, and
// the Store contract for persistence.
//
// The lifecycle is pending → queued → processing → {sent | failed}, where
// processing may re-enter itself on retries. A record never moves backward;
// the worker pool's already-sent short-circuit (not the store) enforces the
// terminal idempotency of "sent".
//
// Store implementations: MemoryStore for tests and local development,
// PGStore (pgx) and MongoStore (mongo-driver) for durable deployments, and
// CachedStore as a Redis read-through decorator for status polling.
package notification
