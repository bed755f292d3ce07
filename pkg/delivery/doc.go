// Package delivery composes the notification pipeline: submission
// validation, durable enqueue, the worker pool, and the operational surface
// (queue status, pause/resume, retry, clean, shutdown).
//
// Submit persists a pending record, enqueues its job, and reports queued
// immediately; retryable delivery failures are only observable by polling
// the record's status afterward. A background reconciler watches the
// queue's failure events so records orphaned by stalled-job exhaustion
// still reach a terminal state.
package delivery
