package monitor

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a lifecycle transition.
type EventKind string

const (
	EventEnqueued   EventKind = "enqueued"
	EventPreRun     EventKind = "pre_run"
	EventPostRun    EventKind = "post_run"
	EventSuccess    EventKind = "success"
	EventFailure    EventKind = "failure"
	EventRetry      EventKind = "retry"
	EventDeadLetter EventKind = "dead_letter"
)

// Event is one lifecycle transition of one invocation.
type Event struct {
	Kind         EventKind
	InvocationID uuid.UUID
	TaskName     string
	Queue        string
	TenantID     uuid.UUID
	Attempt      int8
	// Duration is set on post_run, success, and failure events.
	Duration time.Duration
	// Err is set on failure, retry, and dead_letter events.
	Err error
	At  time.Time
}
