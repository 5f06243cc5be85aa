package taskq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eduforge/taskq/pkg/broker"
	"github.com/eduforge/taskq/pkg/deadletter"
	"github.com/eduforge/taskq/pkg/monitor"
	"github.com/eduforge/taskq/pkg/result"
	"github.com/eduforge/taskq/pkg/task"
	"github.com/eduforge/taskq/pkg/tenant"
)

type enqueueOptions struct {
	tenantID   uuid.UUID
	queue      string
	priority   task.Priority
	hasPrio    bool
	maxRetries int8
	hasRetries bool
	delay      time.Duration
	runAt      time.Time
}

// EnqueueOption adjusts a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

// WithTenant attributes the invocation to an organization. Without it the
// tenant is taken from the caller's context, if present.
func WithTenant(orgID uuid.UUID) EnqueueOption {
	return func(o *enqueueOptions) { o.tenantID = orgID }
}

// WithQueue overrides the task's registered queue.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) { o.queue = queue }
}

// WithPriority overrides the task's registered priority.
func WithPriority(p task.Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = p
		o.hasPrio = true
	}
}

// WithMaxRetries overrides the task's retry budget for this invocation.
func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxRetries = n
		o.hasRetries = true
	}
}

// WithDelay makes the invocation visible to workers only after d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithRunAt schedules the invocation for a wall-clock time. Takes precedence
// over WithDelay when both are set.
func WithRunAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) { o.runAt = at }
}

// Enqueue routes one invocation of the named task to its queue. Args may be
// any JSON-marshalable value or a json.RawMessage. Routing fails fast on
// unregistered names, and broker outages surface as
// broker.ErrBrokerUnavailable without internal retries.
func (s *Service) Enqueue(ctx context.Context, taskName string, args any, opts ...EnqueueOption) (uuid.UUID, error) {
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}

	route, err := s.registry.Resolve(taskName)
	if err != nil {
		return uuid.Nil, err
	}

	raw, err := marshalArgs(args)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal args for %q: %w", taskName, err)
	}

	queue := route.Queue
	if o.queue != "" {
		queue = o.queue
	}
	priority := route.Priority
	if o.hasPrio {
		priority = o.priority
	}
	maxRetries := s.cfg.MaxRetries
	if route.Definition != nil {
		maxRetries = route.Definition.Retry.MaxRetries
	}
	if o.hasRetries {
		maxRetries = o.maxRetries
	}
	tenantID := o.tenantID
	if tenantID == uuid.Nil {
		if orgID, ok := tenant.OrgIDFromContext(ctx); ok {
			tenantID = orgID
		}
	}

	inv := &task.Invocation{
		ID:         uuid.New(),
		TaskName:   taskName,
		Args:       raw,
		TenantID:   tenantID,
		Queue:      queue,
		Priority:   priority,
		Status:     task.StatusPending,
		MaxRetries: maxRetries,
		EnqueuedAt: time.Now(),
	}

	var enqOpts []broker.EnqueueOption
	switch {
	case !o.runAt.IsZero():
		enqOpts = append(enqOpts, broker.WithReadyAt(o.runAt))
	case o.delay > 0:
		enqOpts = append(enqOpts, broker.WithDelay(o.delay))
	}
	if err := s.broker.Enqueue(ctx, inv, enqOpts...); err != nil {
		return uuid.Nil, err
	}

	s.dispatcher.Publish(ctx, monitor.Event{
		Kind:         monitor.EventEnqueued,
		InvocationID: inv.ID,
		TaskName:     inv.TaskName,
		Queue:        inv.Queue,
		TenantID:     inv.TenantID,
		At:           time.Now(),
	})
	return inv.ID, nil
}

// BatchItem is one invocation in an EnqueueAll call.
type BatchItem struct {
	TaskName string
	Args     any
	Options  []EnqueueOption
}

// EnqueueAll enqueues the items in order and returns their invocation IDs.
// It stops at the first failure; previously enqueued items are not rolled
// back (the broker has no transactions across invocations), so callers
// needing atomicity should enqueue a single coordinating task instead.
func (s *Service) EnqueueAll(ctx context.Context, items []BatchItem) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for i, item := range items {
		id, err := s.Enqueue(ctx, item.TaskName, item.Args, item.Options...)
		if err != nil {
			return ids, fmt.Errorf("batch item %d (%s): %w", i, item.TaskName, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// emitPeriodic is the beat scheduler's enqueue callback. It fills routing
// fields the entry left unset from the registry before handing the
// invocation to the broker.
func (s *Service) emitPeriodic(ctx context.Context, inv *task.Invocation) error {
	route, err := s.registry.Resolve(inv.TaskName)
	if err != nil {
		return err
	}
	if inv.Queue == "" {
		inv.Queue = route.Queue
	}
	if inv.Priority == 0 {
		inv.Priority = route.Priority
	}
	if inv.MaxRetries == 0 && route.Definition != nil {
		inv.MaxRetries = route.Definition.Retry.MaxRetries
	}

	if err := s.broker.Enqueue(ctx, inv); err != nil {
		return err
	}
	s.dispatcher.Publish(ctx, monitor.Event{
		Kind:         monitor.EventEnqueued,
		InvocationID: inv.ID,
		TaskName:     inv.TaskName,
		Queue:        inv.Queue,
		TenantID:     inv.TenantID,
		At:           time.Now(),
	})
	return nil
}

// Status returns the last recorded state of an invocation. Requires a
// configured result backend; with the no-op backend every lookup reports
// result.ErrStatusNotFound.
func (s *Service) Status(ctx context.Context, invocationID uuid.UUID) (*result.StatusInfo, error) {
	return s.results.GetStatus(ctx, invocationID)
}

// DeadLetters lists dead-letter records matching the filter.
func (s *Service) DeadLetters(ctx context.Context, filter deadletter.Filter) ([]*deadletter.Record, error) {
	return s.dlq.List(ctx, filter)
}

// QueueDepth reports ready plus scheduled invocations on the queue.
func (s *Service) QueueDepth(ctx context.Context, queue string) (int64, error) {
	return s.broker.QueueDepth(ctx, queue)
}

func marshalArgs(args any) (json.RawMessage, error) {
	switch v := args.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
