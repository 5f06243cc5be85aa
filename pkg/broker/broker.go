package broker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/task"
)

// Broker is the durable message channel between producers and workers.
// Implementations must be safe for concurrent use by many workers.
type Broker interface {
	// Enqueue makes the invocation available on its queue, optionally after
	// a delay. Fails fast with ErrBrokerUnavailable when the backend cannot
	// be reached.
	Enqueue(ctx context.Context, inv *task.Invocation, opts ...EnqueueOption) error

	// Dequeue blocks until an invocation is available on the queue or ctx is
	// done. The returned delivery is leased: it must be acked on success or
	// nacked to return it immediately; an unsettled delivery is redelivered
	// after the visibility timeout.
	Dequeue(ctx context.Context, queue string) (*Delivery, error)

	// QueueDepth returns the number of invocations ready or scheduled on the
	// queue, excluding in-flight leases.
	QueueDepth(ctx context.Context, queue string) (int64, error)

	// Close releases broker resources. In-flight leases are abandoned and
	// will be redelivered by durable backends.
	Close() error
}

// settler settles a leased delivery. Implemented by each broker backend.
type settler interface {
	ack(ctx context.Context, d *Delivery) error
	nack(ctx context.Context, d *Delivery) error
}

// Delivery is one leased invocation. Exactly one of Ack or Nack may be called;
// letting the visibility deadline pass instead triggers redelivery.
type Delivery struct {
	Invocation *task.Invocation
	// Token identifies this lease. Redeliveries of the same invocation carry
	// fresh tokens.
	Token uuid.UUID
	// Deadline is when the lease expires and the invocation becomes visible
	// to other consumers again.
	Deadline time.Time

	settled atomic.Bool
	via     settler
}

// Ack removes the invocation from the broker permanently.
func (d *Delivery) Ack(ctx context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.via.ack(ctx, d)
}

// Nack returns the invocation to its queue immediately, same priority.
func (d *Delivery) Nack(ctx context.Context) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return d.via.nack(ctx, d)
}

// Settled reports whether Ack or Nack was already called.
func (d *Delivery) Settled() bool {
	return d.settled.Load()
}

// EnqueueOption is a functional option for the Enqueue method
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	delay   time.Duration
	readyAt *time.Time
}

// WithDelay makes the invocation invisible for the given duration before it
// can be dequeued. Used for one-off producer delays and retry backoff.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithReadyAt schedules the invocation for a specific wall-clock time.
// Takes precedence over WithDelay.
func WithReadyAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.readyAt = &t
	}
}

func resolveReadyAt(now time.Time, opts []EnqueueOption) time.Time {
	options := &enqueueOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.readyAt != nil {
		return *options.readyAt
	}
	return now.Add(options.delay)
}

// tierCount is the number of priority tiers per queue. FIFO-ish ordering is
// guaranteed within one tier only.
const tierCount = 5

// tierFor buckets a priority into its tier. The named priority constants
// (0/25/50/75/100) each land in their own tier.
func tierFor(p task.Priority) int {
	t := int(p) / 25
	if t < 0 {
		return 0
	}
	if t >= tierCount {
		return tierCount - 1
	}
	return t
}
