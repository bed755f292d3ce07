// Package pg bootstraps a resilient PostgreSQL layer on pgx/v5: pooled
// connections with startup retries, goose-driven schema migrations, and a
// readiness probe. The API surface is deliberately thin so storage packages
// work directly against the pgx pool.
package pg
