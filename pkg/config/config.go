package config

import (
	"fmt"
	"time"
)

// Config is the recognized configuration surface of the queue subsystem.
// Everything has a default except the broker URL, so a worker process starts
// from a single TASKQ_BROKER_URL.
type Config struct {
	// BrokerURL points at the Redis broker, e.g. redis://localhost:6379/0.
	BrokerURL string `env:"TASKQ_BROKER_URL,required,notEmpty"`
	// ResultBackendURL enables invocation status tracking when set. Empty
	// disables the result backend entirely.
	ResultBackendURL string `env:"TASKQ_RESULT_BACKEND_URL"`
	// DeadLetterDatabaseURL enables the Postgres dead-letter store when set.
	// Empty keeps dead letters in the broker's Redis.
	DeadLetterDatabaseURL string `env:"TASKQ_DEAD_LETTER_DATABASE_URL"`

	// KeyPrefix namespaces all broker and store keys.
	KeyPrefix string `env:"TASKQ_KEY_PREFIX" envDefault:"taskq"`

	// Queues lists the queues this worker consumes, in order.
	Queues []string `env:"TASKQ_QUEUES" envSeparator:"," envDefault:"default"`
	// WorkerConcurrency is the number of workers in the pool.
	WorkerConcurrency int `env:"TASKQ_WORKER_CONCURRENCY" envDefault:"4"`

	// SoftTimeLimit cancels a handler's context when exceeded.
	SoftTimeLimit time.Duration `env:"TASKQ_SOFT_TIME_LIMIT" envDefault:"5m"`
	// HardTimeLimit abandons the invocation unacked when exceeded.
	HardTimeLimit time.Duration `env:"TASKQ_HARD_TIME_LIMIT" envDefault:"6m"`
	// ShutdownGrace bounds how long shutdown waits for in-flight work.
	ShutdownGrace time.Duration `env:"TASKQ_SHUTDOWN_GRACE" envDefault:"30s"`
	// VisibilityTimeout is how long a dequeued-but-unacked invocation stays
	// invisible before redelivery.
	VisibilityTimeout time.Duration `env:"TASKQ_VISIBILITY_TIMEOUT" envDefault:"10m"`

	// MaxRetries is the default retry budget for tasks that do not set one.
	MaxRetries int8 `env:"TASKQ_MAX_RETRIES" envDefault:"3"`
	// BaseRetryDelay is the backoff base; retry n waits base*2^n plus jitter.
	BaseRetryDelay time.Duration `env:"TASKQ_BASE_RETRY_DELAY" envDefault:"30s"`
	// MaxRetryDelay caps the computed backoff.
	MaxRetryDelay time.Duration `env:"TASKQ_MAX_RETRY_DELAY" envDefault:"15m"`

	// DeadLetterRetentionDays is how long dead-letter records are kept.
	DeadLetterRetentionDays int `env:"TASKQ_DEAD_LETTER_RETENTION_DAYS" envDefault:"14"`

	// BeatLockTTL is the emission lease duration for the beat scheduler.
	BeatLockTTL time.Duration `env:"TASKQ_BEAT_LOCK_TTL" envDefault:"15s"`
	// BeatScheduleFile optionally points at a YAML schedule table.
	BeatScheduleFile string `env:"TASKQ_BEAT_SCHEDULE_FILE"`

	// MetricsExportPort serves the metrics and health endpoints when nonzero.
	MetricsExportPort int `env:"TASKQ_METRICS_EXPORT_PORT" envDefault:"0"`
}

// Retention converts DeadLetterRetentionDays to a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.DeadLetterRetentionDays) * 24 * time.Hour
}

// Validate checks cross-field invariants that env tags cannot express.
func (c Config) Validate() error {
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("%w: worker concurrency %d", ErrInvalidConfig, c.WorkerConcurrency)
	}
	if c.HardTimeLimit <= c.SoftTimeLimit {
		return fmt.Errorf("%w: hard time limit %s must exceed soft time limit %s",
			ErrInvalidConfig, c.HardTimeLimit, c.SoftTimeLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: negative max retries", ErrInvalidConfig)
	}
	if c.DeadLetterRetentionDays < 1 {
		return fmt.Errorf("%w: dead letter retention %d days", ErrInvalidConfig, c.DeadLetterRetentionDays)
	}
	if len(c.Queues) == 0 {
		return fmt.Errorf("%w: no queues", ErrInvalidConfig)
	}
	return nil
}
