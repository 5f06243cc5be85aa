package deadletter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/task"
)

// DefaultRetention is how long records are kept when no retention is configured.
const DefaultRetention = 14 * 24 * time.Hour

// Record is an append-only snapshot of an exhausted invocation.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	Invocation task.Invocation `json:"invocation"`
	Reason     string          `json:"reason"`
	RecordedAt time.Time       `json:"recorded_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Filter narrows List results. Zero-value fields match everything.
type Filter struct {
	Queue    string
	TaskName string
	TenantID uuid.UUID
	Limit    int
	Offset   int
}

func (f Filter) matches(r *Record) bool {
	if f.Queue != "" && r.Invocation.Queue != f.Queue {
		return false
	}
	if f.TaskName != "" && r.Invocation.TaskName != f.TaskName {
		return false
	}
	if f.TenantID != (uuid.UUID{}) && r.Invocation.TenantID != f.TenantID {
		return false
	}
	return true
}

// Store is the persistence contract for dead letters. Implementations must
// tolerate concurrent access from many workers.
type Store interface {
	// Put appends a record for the invocation and returns the record ID.
	Put(ctx context.Context, inv *task.Invocation, reason string) (uuid.UUID, error)

	// Get retrieves a record by ID. Returns ErrRecordNotFound when absent
	// or already purged.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Record, error)

	// Purge removes records whose retention window ended before now and
	// returns how many were removed.
	Purge(ctx context.Context, now time.Time) (int64, error)

	// Count returns the number of live records.
	Count(ctx context.Context) (int64, error)
}
