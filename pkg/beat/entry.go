package beat

import (
	"encoding/json"

	"github.com/eduforge/taskq/pkg/task"
)

// Entry is one row of the schedule table: which task to emit, with what
// arguments, where, and when.
type Entry struct {
	// Name identifies the entry. Last-fire times are persisted under it, so
	// renaming an entry resets its history.
	Name string
	// TaskName is the registered task the entry emits.
	TaskName string
	// Args is the fixed argument payload of every emitted invocation.
	Args json.RawMessage
	// Queue overrides the task's registered queue when non-empty.
	Queue string
	// Priority for emitted invocations. Zero means the default priority.
	Priority task.Priority
	// MaxRetries for emitted invocations.
	MaxRetries int8
	// Schedule determines the fire times.
	Schedule Schedule
}

func (e Entry) validate() error {
	if e.Name == "" {
		return ErrEmptyEntryName
	}
	if e.TaskName == "" {
		return ErrEmptyTaskName
	}
	if e.Schedule == nil {
		return ErrNilSchedule
	}
	return nil
}
