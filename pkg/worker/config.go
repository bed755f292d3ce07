package worker

import "time"

// Config holds worker pool settings, loadable from the environment.
type Config struct {
	PoolSize     int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"200ms"`
}
