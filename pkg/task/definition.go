package task

import (
	"github.com/eduforge/taskq/pkg/retry"
)

// Definition binds a task name to its handler, target queue, rate limit, and
// default retry policy. Definitions are registered once at startup and never
// mutated afterwards.
type Definition struct {
	// Name uniquely identifies the task across processes.
	Name string
	// Handler executes invocations of this task.
	Handler Handler
	// Queue is the target queue. Empty means DefaultQueueName.
	Queue string
	// Priority is the default priority for invocations of this task.
	Priority Priority
	// RateLimit caps handler executions per second per process.
	// Zero means unlimited.
	RateLimit float64
	// RateBurst is the burst allowance for RateLimit. Ignored when RateLimit
	// is zero; defaults to 1 when unset.
	RateBurst int
	// Retry is the default retry policy for this task.
	Retry retry.Policy
}

// normalize fills unset fields with defaults. Called by the registry at
// registration time so resolved routes never carry zero values.
func (d Definition) normalize() Definition {
	if d.Queue == "" {
		d.Queue = DefaultQueueName
	}
	if d.Priority == 0 {
		d.Priority = PriorityDefault
	}
	if d.RateLimit > 0 && d.RateBurst <= 0 {
		d.RateBurst = 1
	}
	d.Retry = d.Retry.Normalize()
	return d
}

// validate checks registration-time invariants.
func (d Definition) validate() error {
	if d.Name == "" {
		return ErrEmptyTaskName
	}
	if d.Handler == nil {
		return ErrNilHandler
	}
	if !d.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}
