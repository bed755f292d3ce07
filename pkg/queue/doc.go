// Package queue implements the durable delivery queue: priority-ordered,
// at-least-once, with bounded retries and centralized scheduling.
//
// # Guarantees
//
//   - Exclusive dequeue: a job is held by at most one worker at a time,
//     enforced by the Storage implementation (mutex in memory, FOR UPDATE
//     SKIP LOCKED in Postgres).
//   - Ordering: higher priority rank first; FIFO by enqueue sequence within
//     a rank. Delayed jobs re-enter ordering once due.
//   - Bounded attempts: AttemptsMade is incremented when a job is claimed;
//     Fail reschedules with backoff while the budget holds and terminates
//     the job otherwise. Discard terminates immediately for non-retryable
//     errors.
//   - Stalled recovery: a background reaper returns jobs held past their
//     lock lease to the scheduler and charges them as a failed attempt.
//     A worker that finished after its lease expired therefore causes a
//     duplicate send; delivery is at-least-once by design.
//
// Completed and failed jobs are retained in bounded numbers (newest 100 and
// 50 by default) and can be purged explicitly with Clean.
//
// Lifecycle transitions publish events (completed, failed, stalled) on a
// broadcast stream; observers subscribe via Subscribe, and the queue never
// depends on their presence.
package queue
