// Package broadcast provides a minimal, type-safe pub/sub primitive used for
// best-effort fan-out: in-app live delivery and queue lifecycle events.
//
// Broadcasts never block the publisher. A subscriber that cannot keep up has
// messages dropped and is detached, which keeps the hot path (job processing)
// independent of observer health.
//
// The in-memory implementation is the only one provided; the interfaces leave
// room for Redis or NATS backed adapters.
package broadcast
