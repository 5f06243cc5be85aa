package executor

import (
	"log/slog"
	"time"

	"github.com/eduforge/taskq/pkg/deadletter"
	"github.com/eduforge/taskq/pkg/monitor"
	"github.com/eduforge/taskq/pkg/result"
)

const (
	defaultConcurrency   = 4
	defaultSoftTimeLimit = 5 * time.Minute
	defaultHardTimeLimit = 6 * time.Minute
	defaultPullTimeout   = time.Second
	defaultShutdownGrace = 30 * time.Second
)

// Option configures an Executor.
type Option func(*Executor)

// WithQueues sets the queues the pool consumes from. Defaults to "default".
func WithQueues(queues ...string) Option {
	return func(e *Executor) {
		if len(queues) > 0 {
			e.queues = queues
		}
	}
}

// WithConcurrency sets the number of workers in the pool.
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSoftTimeLimit sets the per-invocation deadline after which the
// handler's context is cancelled. The handler may still clean up and return.
func WithSoftTimeLimit(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.softLimit = d
		}
	}
}

// WithHardTimeLimit sets the per-invocation deadline after which the
// invocation is abandoned unacked. Must exceed the soft limit to give
// handlers a window to honor cancellation.
func WithHardTimeLimit(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.hardLimit = d
		}
	}
}

// WithShutdownGrace bounds how long Stop waits for in-flight invocations.
func WithShutdownGrace(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithPullTimeout bounds a single blocking dequeue call per queue. Shorter
// values make workers rotate across queues more eagerly.
func WithPullTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.pullTimeout = d
		}
	}
}

// WithDeadLetterStore sets the store capturing exhausted and fatal
// invocations. Without one, dead-lettered invocations are only logged.
func WithDeadLetterStore(s deadletter.Store) Option {
	return func(e *Executor) { e.dlq = s }
}

// WithResultBackend sets the backend receiving status transitions.
func WithResultBackend(b result.Backend) Option {
	return func(e *Executor) {
		if b != nil {
			e.results = b
		}
	}
}

// WithDispatcher sets the monitor dispatcher receiving lifecycle events.
func WithDispatcher(d *monitor.Dispatcher) Option {
	return func(e *Executor) { e.dispatcher = d }
}

// WithHooks sets the lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(e *Executor) { e.hooks = h }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}
