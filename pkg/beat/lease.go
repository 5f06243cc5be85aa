package beat

import (
	"context"
	"sync"
	"time"
)

// Lease is a single named lock shared by all scheduler processes. Exactly one
// process holds it at a time; the holder must renew before the TTL expires or
// another process may take over.
type Lease interface {
	// Acquire attempts to take the lease. Returns true when this process is
	// now the holder.
	Acquire(ctx context.Context, ttl time.Duration) (bool, error)
	// Renew extends the lease if this process still holds it. Returns false
	// when the lease was lost.
	Renew(ctx context.Context, ttl time.Duration) (bool, error)
	// Release gives up the lease if this process holds it.
	Release(ctx context.Context) error
}

// LeaseState is the shared side of an in-process lease, for tests and
// single-process deployments. Create one state and hand each contender its
// own Lease via Contender.
type LeaseState struct {
	mu      sync.Mutex
	holder  string
	expires time.Time
}

// NewLeaseState creates an unheld in-process lease.
func NewLeaseState() *LeaseState {
	return &LeaseState{}
}

// Contender returns the Lease handle for one named contender.
func (s *LeaseState) Contender(owner string) Lease {
	return &memoryLease{state: s, owner: owner}
}

type memoryLease struct {
	state *LeaseState
	owner string
}

func (l *memoryLease) Acquire(_ context.Context, ttl time.Duration) (bool, error) {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.holder != "" && s.holder != l.owner && s.expires.After(now) {
		return false, nil
	}
	s.holder = l.owner
	s.expires = now.Add(ttl)
	return true, nil
}

func (l *memoryLease) Renew(_ context.Context, ttl time.Duration) (bool, error) {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.holder != l.owner || !s.expires.After(now) {
		return false, nil
	}
	s.expires = now.Add(ttl)
	return true, nil
}

func (l *memoryLease) Release(_ context.Context) error {
	s := l.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == l.owner {
		s.holder = ""
		s.expires = time.Time{}
	}
	return nil
}
