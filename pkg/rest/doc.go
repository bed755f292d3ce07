// Package rest maps the delivery service onto an HTTP API: notification
// submission and lookup, an SSE stream of in-app payloads, and the queue's
// operational surface (status, pause/resume, retry, clean).
//
// The layer is intentionally thin: it parses requests, delegates to
// delivery.Service, and translates domain errors onto HTTP statuses.
package rest
