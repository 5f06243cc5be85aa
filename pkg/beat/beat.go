package beat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/task"
)

// EnqueueFunc hands an emitted invocation to the queue. The producing side
// provides the implementation, which keeps this package free of broker and
// registry imports. Zero routing fields (queue, priority) are resolved by
// the callback.
type EnqueueFunc func(ctx context.Context, inv *task.Invocation) error

const (
	defaultTickInterval = time.Second
	defaultLeaseTTL     = 15 * time.Second
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLease sets the shared lease. Defaults to an in-process lease, which is
// only correct for single-process deployments.
func WithLease(l Lease) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.lease = l
		}
	}
}

// WithStore sets the last-fire store. Defaults to an in-process store.
func WithStore(st Store) SchedulerOption {
	return func(s *Scheduler) {
		if st != nil {
			s.store = st
		}
	}
}

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithLeaseTTL sets the lease duration. The lease is renewed every tick, so
// the TTL should be several ticks long.
func WithLeaseTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.leaseTTL = d
		}
	}
}

// WithSchedulerLogger sets the logger. Defaults to slog.Default.
func WithSchedulerLogger(log *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// Scheduler emits invocations for due entries while it holds the lease.
type Scheduler struct {
	enqueue  EnqueueFunc
	lease    Lease
	store    Store
	log      *slog.Logger
	tick     time.Duration
	leaseTTL time.Duration

	mu      sync.Mutex
	entries []*Entry
	names   map[string]struct{}

	running atomic.Bool

	// Loop-local state, touched only by Run's goroutine.
	holding    bool
	acquiredAt time.Time
	lastFires  map[string]time.Time
}

// NewScheduler creates a Scheduler that emits through enqueue. Without
// WithLease and WithStore it runs standalone with in-process state.
func NewScheduler(enqueue EnqueueFunc, opts ...SchedulerOption) (*Scheduler, error) {
	if enqueue == nil {
		return nil, ErrNilEnqueue
	}
	s := &Scheduler{
		enqueue:  enqueue,
		lease:    NewLeaseState().Contender(uuid.NewString()),
		store:    NewMemoryStore(),
		log:      slog.Default(),
		tick:     defaultTickInterval,
		leaseTTL: defaultLeaseTTL,
		names:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add registers an entry. Entries must be added before Run.
func (s *Scheduler) Add(e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[e.Name]; exists {
		return ErrDuplicateEntry
	}
	s.names[e.Name] = struct{}{}
	s.entries = append(s.entries, &e)
	s.log.Info("registered periodic entry",
		slog.String("entry", e.Name),
		slog.String("task", e.TaskName),
		slog.String("schedule", e.Schedule.String()))
	return nil
}

// Run ticks until ctx is cancelled, emitting due entries whenever this
// process holds the lease. Returns nil on a clean stop.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.mu.Lock()
	n := len(s.entries)
	s.mu.Unlock()
	if n == 0 {
		return ErrNoEntries
	}

	s.log.InfoContext(ctx, "beat scheduler started",
		slog.Int("entries", n),
		slog.Duration("tick", s.tick))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lease.Release(releaseCtx); err != nil {
			s.log.Warn("lease release failed", slog.String("error", err.Error()))
		}
	}()

	s.tickOnce(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("beat scheduler stopped")
			return nil
		case <-ticker.C:
			s.tickOnce(ctx, time.Now())
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context, now time.Time) {
	if !s.ensureLease(ctx, now) {
		return
	}

	s.mu.Lock()
	entries := make([]*Entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	for _, e := range entries {
		last, ok := s.lastFires[e.Name]
		if !ok || last.IsZero() {
			// Never fired: count from lease acquisition, so a freshly
			// started table does not burst on its first tick.
			last = s.acquiredAt
		}
		if e.Schedule.Next(last).After(now) {
			continue
		}
		// Firing resets the baseline to now, so an entry that missed several
		// slots while no process held the lease emits one catch-up
		// invocation, not the whole backlog.
		s.fire(ctx, e, now)
	}
}

// ensureLease renews or acquires the lease and reports whether this process
// may emit. Renew errors pause emission until the lease is re-acquired.
func (s *Scheduler) ensureLease(ctx context.Context, now time.Time) bool {
	if s.holding {
		ok, err := s.lease.Renew(ctx, s.leaseTTL)
		if err != nil {
			s.holding = false
			s.log.WarnContext(ctx, "lease renew failed, pausing emission",
				slog.String("error", err.Error()))
			return false
		}
		if !ok {
			s.holding = false
			s.log.WarnContext(ctx, "lease lost, pausing emission")
			return false
		}
		return true
	}

	ok, err := s.lease.Acquire(ctx, s.leaseTTL)
	if err != nil {
		s.log.WarnContext(ctx, "lease acquire failed",
			slog.String("error", err.Error()))
		return false
	}
	if !ok {
		return false
	}

	s.holding = true
	s.acquiredAt = now
	s.loadLastFires(ctx)
	s.log.InfoContext(ctx, "acquired emission lease")
	return true
}

// loadLastFires refreshes the local cache from the store. Called on every
// acquisition so a takeover sees what the previous holder emitted.
func (s *Scheduler) loadLastFires(ctx context.Context) {
	s.mu.Lock()
	entries := make([]*Entry, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	s.lastFires = make(map[string]time.Time, len(entries))
	for _, e := range entries {
		last, err := s.store.LastFire(ctx, e.Name)
		if err != nil {
			s.log.WarnContext(ctx, "last-fire load failed",
				slog.String("entry", e.Name),
				slog.String("error", err.Error()))
			continue
		}
		if !last.IsZero() {
			s.lastFires[e.Name] = last
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) {
	inv := &task.Invocation{
		ID:         uuid.New(),
		TaskName:   e.TaskName,
		Args:       e.Args,
		Queue:      e.Queue,
		Priority:   e.Priority,
		Status:     task.StatusPending,
		MaxRetries: e.MaxRetries,
		EnqueuedAt: now,
	}
	if err := s.enqueue(ctx, inv); err != nil {
		// The baseline stays put, so the entry fires again next tick.
		s.log.ErrorContext(ctx, "periodic enqueue failed",
			slog.String("entry", e.Name),
			slog.String("task", e.TaskName),
			slog.String("error", err.Error()))
		return
	}
	s.lastFires[e.Name] = now
	if err := s.store.SetLastFire(ctx, e.Name, now); err != nil {
		s.log.WarnContext(ctx, "last-fire persist failed",
			slog.String("entry", e.Name),
			slog.String("error", err.Error()))
	}
	s.log.InfoContext(ctx, "periodic entry fired",
		slog.String("entry", e.Name),
		slog.String("task", e.TaskName),
		slog.String("invocation_id", inv.ID.String()))
}
