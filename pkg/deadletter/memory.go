package deadletter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/task"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]*Record
	retention time.Duration
}

// NewMemoryStore creates an in-memory dead letter store. A non-positive
// retention falls back to DefaultRetention.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		records:   make(map[uuid.UUID]*Record),
		retention: retention,
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, inv *task.Invocation, reason string) (uuid.UUID, error) {
	if inv == nil {
		return uuid.UUID{}, ErrNilInvocation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rec := &Record{
		ID:         uuid.New(),
		Invocation: *inv,
		Reason:     reason,
		RecordedAt: now,
		ExpiresAt:  now.Add(s.retention),
	}
	s.records[rec.ID] = rec

	return rec.ID, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	return &clone, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*Record, 0)
	for _, rec := range s.records {
		if filter.matches(rec) {
			clone := *rec
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

// Purge implements Store.
func (s *MemoryStore) Purge(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, id)
			purged++
		}
	}
	return purged, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.records)), nil
}
