// Package httpserver wraps net/http's server with graceful shutdown,
// termination-signal handling, env-driven configuration, and a combined
// liveness/readiness health handler.
package httpserver
