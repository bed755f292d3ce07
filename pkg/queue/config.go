package queue

import "time"

// Config holds queue settings, loadable from the environment.
type Config struct {
	LockLease       time.Duration `env:"QUEUE_LOCK_LEASE" envDefault:"1m"`
	ReapInterval    time.Duration `env:"QUEUE_REAP_INTERVAL" envDefault:"5s"`
	KeepCompleted   int           `env:"QUEUE_KEEP_COMPLETED" envDefault:"100"`
	KeepFailed      int           `env:"QUEUE_KEEP_FAILED" envDefault:"50"`
	BackoffKind     string        `env:"QUEUE_BACKOFF_KIND" envDefault:"exponential"`
	BackoffBase     time.Duration `env:"QUEUE_BACKOFF_BASE" envDefault:"2s"`
	BackoffMaxDelay time.Duration `env:"QUEUE_BACKOFF_MAX_DELAY" envDefault:"0"`
}
