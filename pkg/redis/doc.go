// Package redis bootstraps a go-redis client with startup retries and a
// readiness probe. Used by the notification status cache.
package redis
