package broker

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/task"
)

// MemoryOption configures a MemoryBroker.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	visibilityTimeout time.Duration
	sweepInterval     time.Duration
	pollInterval      time.Duration
}

// WithVisibilityTimeout sets how long a dequeued-but-unacked invocation stays
// hidden before redelivery.
func WithVisibilityTimeout(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if d > 0 {
			o.visibilityTimeout = d
		}
	}
}

// WithSweepInterval sets how often expired leases are swept back to ready.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithPollInterval sets how often a blocked Dequeue re-checks for work.
func WithPollInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// memMsg is one enqueued invocation instance. Retries of the same invocation
// produce distinct messages with fresh tokens.
type memMsg struct {
	inv      *task.Invocation
	token    uuid.UUID // lease token, assigned at claim time
	readyAt  time.Time
	deadline time.Time // zero unless in flight
}

// MemoryBroker is an in-process Broker for tests and local development.
// It honors the same lease semantics as durable backends: unacked deliveries
// are swept back to ready once their visibility deadline passes.
type MemoryBroker struct {
	mu       sync.Mutex
	ready    map[string][]*memMsg  // by queue, unsorted; claim scans
	inflight map[uuid.UUID]*memMsg // by lease token
	closed   bool

	visibilityTimeout time.Duration
	pollInterval      time.Duration

	sweepTicker *time.Ticker
	done        chan struct{}
}

// NewMemoryBroker creates an in-memory broker and starts its lease sweeper.
func NewMemoryBroker(opts ...MemoryOption) *MemoryBroker {
	options := &memoryOptions{
		visibilityTimeout: 30 * time.Second,
		sweepInterval:     time.Second,
		pollInterval:      20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(options)
	}

	b := &MemoryBroker{
		ready:             make(map[string][]*memMsg),
		inflight:          make(map[uuid.UUID]*memMsg),
		visibilityTimeout: options.visibilityTimeout,
		pollInterval:      options.pollInterval,
		done:              make(chan struct{}),
	}

	b.sweepTicker = time.NewTicker(options.sweepInterval)
	go b.sweepLoop()

	return b
}

// Enqueue implements Broker.
func (b *MemoryBroker) Enqueue(ctx context.Context, inv *task.Invocation, opts ...EnqueueOption) error {
	if inv == nil {
		return ErrNilInvocation
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	// Clone so later producer-side mutation cannot corrupt queued state.
	clone := *inv
	msg := &memMsg{
		inv:     &clone,
		readyAt: resolveReadyAt(time.Now(), opts),
	}
	b.ready[clone.Queue] = append(b.ready[clone.Queue], msg)

	return nil
}

// Dequeue implements Broker. It polls until a message is ready or ctx is done.
func (b *MemoryBroker) Dequeue(ctx context.Context, queue string) (*Delivery, error) {
	for {
		if d := b.tryClaim(queue); d != nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.done:
			return nil, ErrClosed
		case <-time.After(b.pollInterval):
		}
	}
}

// tryClaim selects the best ready message: highest priority tier first,
// earliest ready time within the tier.
func (b *MemoryBroker) tryClaim(queue string) *Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	now := time.Now()
	var best *memMsg
	bestIdx := -1
	for i, msg := range b.ready[queue] {
		if msg.readyAt.After(now) {
			continue
		}
		if best == nil ||
			tierFor(msg.inv.Priority) > tierFor(best.inv.Priority) ||
			(tierFor(msg.inv.Priority) == tierFor(best.inv.Priority) && msg.readyAt.Before(best.readyAt)) {
			best = msg
			bestIdx = i
		}
	}
	if best == nil {
		return nil
	}

	b.ready[queue] = slices.Delete(b.ready[queue], bestIdx, bestIdx+1)
	// Fresh token per lease so a stale settle after redelivery is a no-op.
	best.token = uuid.New()
	best.deadline = now.Add(b.visibilityTimeout)
	b.inflight[best.token] = best

	// Hand out a copy; the caller may mutate attempt count and status.
	clone := *best.inv
	return &Delivery{
		Invocation: &clone,
		Token:      best.token,
		Deadline:   best.deadline,
		via:        b,
	}
}

// QueueDepth implements Broker.
func (b *MemoryBroker) QueueDepth(_ context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	return int64(len(b.ready[queue])), nil
}

// Close implements Broker.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	b.sweepTicker.Stop()
	return nil
}

func (b *MemoryBroker) ack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inflight, d.Token)
	return nil
}

func (b *MemoryBroker) nack(_ context.Context, d *Delivery) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.inflight[d.Token]
	if !ok {
		// Lease already expired and was swept back; nothing to do.
		return nil
	}
	delete(b.inflight, d.Token)
	msg.deadline = time.Time{}
	msg.readyAt = time.Now()
	b.ready[msg.inv.Queue] = append(b.ready[msg.inv.Queue], msg)
	return nil
}

// sweepLoop returns expired leases to their queues so invocations claimed by
// crashed or stalled workers are not lost.
func (b *MemoryBroker) sweepLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.sweepTicker.C:
			b.sweepExpired()
		}
	}
}

func (b *MemoryBroker) sweepExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for token, msg := range b.inflight {
		if msg.deadline.Before(now) {
			delete(b.inflight, token)
			msg.deadline = time.Time{}
			msg.readyAt = now
			b.ready[msg.inv.Queue] = append(b.ready[msg.inv.Queue], msg)
		}
	}
}
