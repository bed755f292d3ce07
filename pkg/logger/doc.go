// Package logger provides a small slog factory plus attribute helpers with
// the canonical keys used across the codebase (notification_id, job_id,
// user_id, channel). Consistent keys keep log aggregation queries stable.
package logger
