// Package result records invocation status transitions so producers can poll
// the outcome of enqueued work. The backend is optional: without one, failures
// surface only through dead letters, metrics, and logs.
package result

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/task"
)

// ErrStatusNotFound is returned when no status is recorded for an invocation,
// either because it never existed or because its record expired.
var ErrStatusNotFound = errors.New("invocation status not found")

// StatusInfo is the pollable state of one invocation.
type StatusInfo struct {
	InvocationID uuid.UUID   `json:"invocation_id"`
	TaskName     string      `json:"task_name"`
	Status       task.Status `json:"status"`
	Attempt      int8        `json:"attempt"`
	Error        string      `json:"error,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Backend persists invocation status transitions.
type Backend interface {
	// SetStatus records the current state of an invocation. errMsg is empty
	// for non-failure transitions.
	SetStatus(ctx context.Context, inv *task.Invocation, errMsg string) error

	// GetStatus returns the last recorded state of an invocation.
	GetStatus(ctx context.Context, invocationID uuid.UUID) (*StatusInfo, error)
}

// NoopBackend discards all writes. Used when no result backend is configured.
type NoopBackend struct{}

// NewNoopBackend creates a backend that records nothing.
func NewNoopBackend() *NoopBackend { return &NoopBackend{} }

// SetStatus implements Backend.
func (*NoopBackend) SetStatus(context.Context, *task.Invocation, string) error { return nil }

// GetStatus implements Backend.
func (*NoopBackend) GetStatus(context.Context, uuid.UUID) (*StatusInfo, error) {
	return nil, ErrStatusNotFound
}

// MemoryBackend keeps statuses in process memory. For tests and local runs.
type MemoryBackend struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]*StatusInfo
}

// NewMemoryBackend creates an in-memory result backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{statuses: make(map[uuid.UUID]*StatusInfo)}
}

// SetStatus implements Backend.
func (b *MemoryBackend) SetStatus(_ context.Context, inv *task.Invocation, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.statuses[inv.ID] = &StatusInfo{
		InvocationID: inv.ID,
		TaskName:     inv.TaskName,
		Status:       inv.Status,
		Attempt:      inv.Attempt,
		Error:        errMsg,
		UpdatedAt:    time.Now(),
	}
	return nil
}

// GetStatus implements Backend.
func (b *MemoryBackend) GetStatus(_ context.Context, invocationID uuid.UUID) (*StatusInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info, ok := b.statuses[invocationID]
	if !ok {
		return nil, ErrStatusNotFound
	}
	clone := *info
	return &clone, nil
}
