package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when no queue is specified at registration or enqueue time.
const DefaultQueueName = "default"

// Status represents the lifecycle state of an invocation.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusRetryScheduled Status = "retry_scheduled"
	StatusSuccess        Status = "success"
	StatusDeadLettered   Status = "dead_lettered"
)

// Priority represents invocation priority (0-100, higher is more important)
// Using int8 provides sufficient range while keeping memory footprint minimal
type Priority int8

// Priority constants
const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within valid range
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Invocation is a single request to run a named task with specific arguments
// for a specific tenant. It is created by a producer, mutated only by the
// executor and retry policy, and lives transiently in the broker.
type Invocation struct {
	ID         uuid.UUID       `json:"id"`
	TaskName   string          `json:"task_name"`
	Args       json.RawMessage `json:"args,omitempty"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	Queue      string          `json:"queue"`
	Priority   Priority        `json:"priority"`
	Status     Status          `json:"status"`
	Attempt    int8            `json:"attempt"`
	MaxRetries int8            `json:"max_retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Marshal encodes the invocation for broker transport.
func (inv *Invocation) Marshal() ([]byte, error) {
	return json.Marshal(inv)
}

// UnmarshalInvocation decodes an invocation from broker transport.
func UnmarshalInvocation(data []byte) (*Invocation, error) {
	var inv Invocation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
