// Package mongo manages the MongoDB connection used by the document-backed
// notification store: env-driven configuration, connection retries, and a
// readiness probe.
package mongo
