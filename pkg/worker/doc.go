// Package worker runs the bounded pool of concurrent consumers that drain
// the delivery queue.
//
// Each worker execution is a single unit: load the notification record,
// short-circuit if it was already sent, persist the processing transition
// and attempt increment before dispatching, then reconcile the outcome.
// Success marks the record sent and completes the job. A non-retryable
// failure or an exhausted attempt budget marks the record failed with the
// cause captured verbatim; a retryable failure below the budget leaves the
// record in processing and hands scheduling back to the queue's backoff
// path.
//
// Workers synchronize only through the queue's exclusive-dequeue guarantee
// and the record store's atomic per-record updates.
package worker
