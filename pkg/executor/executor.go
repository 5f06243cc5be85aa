package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/eduforge/taskq/pkg/broker"
	"github.com/eduforge/taskq/pkg/deadletter"
	"github.com/eduforge/taskq/pkg/monitor"
	"github.com/eduforge/taskq/pkg/result"
	"github.com/eduforge/taskq/pkg/retry"
	"github.com/eduforge/taskq/pkg/task"
	"github.com/eduforge/taskq/pkg/tenant"
)

// Executor is a fixed pool of workers consuming invocations from the broker.
// Construct with New, start with Run, stop by cancelling the Run context or
// calling Stop.
type Executor struct {
	broker     broker.Broker
	registry   *task.Registry
	dlq        deadletter.Store
	results    result.Backend
	dispatcher *monitor.Dispatcher
	hooks      Hooks
	log        *slog.Logger

	queues      []string
	concurrency int
	softLimit   time.Duration
	hardLimit   time.Duration
	pullTimeout time.Duration
	grace       time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	running atomic.Bool
	active  atomic.Int64

	// hardStop cancels the contexts of in-flight handlers once the shutdown
	// grace period is exhausted.
	hardMu   sync.Mutex
	hardCtx  context.Context
	hardStop context.CancelFunc
}

// New builds a pool. Defaults: 4 workers on the "default" queue, 5m soft and
// 6m hard time limits, 30s shutdown grace, no-op result backend.
func New(b broker.Broker, reg *task.Registry, opts ...Option) (*Executor, error) {
	if b == nil {
		return nil, ErrNilBroker
	}
	if reg == nil {
		return nil, ErrNilRegistry
	}

	e := &Executor{
		broker:      b,
		registry:    reg,
		results:     result.NewNoopBackend(),
		log:         slog.Default(),
		queues:      []string{task.DefaultQueueName},
		concurrency: defaultConcurrency,
		softLimit:   defaultSoftTimeLimit,
		hardLimit:   defaultHardTimeLimit,
		pullTimeout: defaultPullTimeout,
		grace:       defaultShutdownGrace,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hardLimit <= e.softLimit {
		e.hardLimit = e.softLimit + time.Minute
	}
	return e, nil
}

// ActiveWorkers reports how many workers are currently executing a handler.
func (e *Executor) ActiveWorkers() int64 {
	return e.active.Load()
}

// Run starts the pool and blocks until ctx is cancelled and all workers have
// drained or the shutdown grace expired. It returns nil on a clean stop.
func (e *Executor) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	e.hardMu.Lock()
	e.hardCtx, e.hardStop = context.WithCancel(context.Background())
	e.hardMu.Unlock()

	e.log.InfoContext(ctx, "worker pool started",
		slog.Int("concurrency", e.concurrency),
		slog.Any("queues", e.queues))

	var wg sync.WaitGroup
	for i := 0; i < e.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			e.workerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()

	// Workers stopped pulling; give in-flight handlers the grace window,
	// then cancel their contexts. Invocations cut off this way stay
	// unacked and will be redelivered.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.grace):
		e.log.Warn("shutdown grace expired, abandoning in-flight invocations",
			slog.Int64("active", e.active.Load()))
		e.hardMu.Lock()
		e.hardStop()
		e.hardMu.Unlock()
		<-done
	}

	e.hardMu.Lock()
	e.hardStop()
	e.hardMu.Unlock()
	e.log.Info("worker pool stopped")
	return nil
}

// workerLoop pulls one invocation at a time, rotating across the configured
// queues. Each worker owns its broker pulls; invocations are never pushed.
func (e *Executor) workerLoop(ctx context.Context, id int) {
	log := e.log.With(slog.Int("worker", id))
	for qi := 0; ; qi = (qi + 1) % len(e.queues) {
		if ctx.Err() != nil {
			return
		}
		queue := e.queues[qi]

		pullCtx, cancel := context.WithTimeout(ctx, e.pullTimeout)
		d, err := e.broker.Dequeue(pullCtx, queue)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded), errors.Is(err, broker.ErrNoMessage):
				continue
			case errors.Is(err, context.Canceled), errors.Is(err, broker.ErrClosed):
				return
			default:
				log.ErrorContext(ctx, "dequeue failed",
					slog.String("queue", queue),
					slog.String("error", err.Error()))
				// Back off briefly so a down broker is not hammered.
				select {
				case <-ctx.Done():
					return
				case <-time.After(e.pullTimeout):
				}
				continue
			}
		}

		e.active.Add(1)
		e.process(ctx, log, d)
		e.active.Add(-1)
	}
}

// process drives one delivery through its full lifecycle. It never returns
// an error: every failure mode is absorbed into retry, dead-letter, or an
// abandoned lease.
func (e *Executor) process(ctx context.Context, log *slog.Logger, d *broker.Delivery) {
	inv := d.Invocation
	log = log.With(
		slog.String("invocation_id", inv.ID.String()),
		slog.String("task", inv.TaskName),
		slog.String("queue", inv.Queue))

	def, err := e.registry.Lookup(inv.TaskName)
	if err != nil {
		// No handler in this process. Unknown tasks are never retried; a
		// retry could only fail the same way.
		e.deadLetter(ctx, log, d, fmt.Errorf("%w: %s", task.ErrUnknownTask, inv.TaskName))
		return
	}

	if lim := e.limiterFor(def); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			// Shutting down before the rate limiter admitted us; leave the
			// delivery for redelivery.
			_ = d.Nack(context.WithoutCancel(ctx))
			return
		}
	}

	inv.Status = task.StatusRunning
	if err := e.results.SetStatus(ctx, inv, ""); err != nil {
		log.WarnContext(ctx, "status update failed", slog.String("error", err.Error()))
	}
	e.publish(ctx, monitor.Event{Kind: monitor.EventPreRun, InvocationID: inv.ID,
		TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
		Attempt: inv.Attempt, At: time.Now()})
	if h := e.hooks.BeforeRun; h != nil {
		e.callHook(ctx, "before_run", func() { h(ctx, inv) })
	}

	started := time.Now()
	runErr, abandoned := e.invoke(def, inv)
	elapsed := time.Since(started)

	if abandoned {
		// Hard limit hit: the handler goroutine may still be running, so we
		// must not touch the delivery. The lease expires and the broker
		// redelivers.
		log.ErrorContext(ctx, "hard time limit exceeded, abandoning invocation",
			slog.Duration("elapsed", elapsed),
			slog.Int("attempt", int(inv.Attempt)))
		e.publish(ctx, monitor.Event{Kind: monitor.EventFailure, InvocationID: inv.ID,
			TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
			Attempt: inv.Attempt, Duration: elapsed, Err: ErrExecutionTimeout, At: time.Now()})
		return
	}

	e.publish(ctx, monitor.Event{Kind: monitor.EventPostRun, InvocationID: inv.ID,
		TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
		Attempt: inv.Attempt, Duration: elapsed, At: time.Now()})

	if runErr == nil {
		e.succeed(ctx, log, d, elapsed)
		return
	}

	e.publish(ctx, monitor.Event{Kind: monitor.EventFailure, InvocationID: inv.ID,
		TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
		Attempt: inv.Attempt, Duration: elapsed, Err: runErr, At: time.Now()})

	policy := def.Retry
	policy.MaxRetries = inv.MaxRetries
	if task.IsFatal(runErr) || policy.Exhausted(inv.Attempt) {
		e.deadLetter(ctx, log, d, runErr)
		return
	}
	e.scheduleRetry(ctx, log, d, policy, runErr)
}

// invoke runs the handler under the soft and hard time limits with the tenant
// context attached. It reports the handler error and whether the invocation
// was abandoned at the hard limit. Handler panics surface as fatal errors.
func (e *Executor) invoke(def *task.Definition, inv *task.Invocation) (runErr error, abandoned bool) {
	e.hardMu.Lock()
	base := e.hardCtx
	e.hardMu.Unlock()

	runCtx, cancel := context.WithTimeout(base, e.softLimit)
	defer cancel()
	if inv.TenantID != uuid.Nil {
		runCtx = tenant.WithContext(runCtx, tenant.New(inv.TenantID))
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- task.NewFatal(fmt.Errorf("handler panicked: %v\n%s", r, debug.Stack()))
			}
		}()
		done <- def.Handler.Handle(runCtx, inv.Args)
	}()

	hard := time.NewTimer(e.hardLimit)
	defer hard.Stop()
	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && runCtx.Err() != nil {
			return fmt.Errorf("%w after %s", ErrExecutionTimeout, e.softLimit), false
		}
		return err, false
	case <-hard.C:
		return nil, true
	}
}

func (e *Executor) succeed(ctx context.Context, log *slog.Logger, d *broker.Delivery, elapsed time.Duration) {
	inv := d.Invocation
	inv.Attempt++
	inv.Status = task.StatusSuccess
	if err := e.results.SetStatus(ctx, inv, ""); err != nil {
		log.WarnContext(ctx, "status update failed", slog.String("error", err.Error()))
	}
	if err := d.Ack(context.WithoutCancel(ctx)); err != nil {
		log.WarnContext(ctx, "ack failed", slog.String("error", err.Error()))
	}
	if h := e.hooks.AfterSuccess; h != nil {
		e.callHook(ctx, "after_success", func() { h(ctx, inv) })
	}
	e.publish(ctx, monitor.Event{Kind: monitor.EventSuccess, InvocationID: inv.ID,
		TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
		Attempt: inv.Attempt, Duration: elapsed, At: time.Now()})
	log.InfoContext(ctx, "invocation succeeded",
		slog.Duration("elapsed", elapsed), slog.Int("attempt", int(inv.Attempt)))
}

// scheduleRetry re-enqueues the invocation on its own queue with the backoff
// delay, then acks the original delivery. The retry keeps the original queue
// and priority.
func (e *Executor) scheduleRetry(ctx context.Context, log *slog.Logger, d *broker.Delivery, policy retry.Policy, cause error) {
	inv := d.Invocation
	delay := policy.Delay(inv.Attempt)

	next := *inv
	next.Attempt = inv.Attempt + 1
	next.Status = task.StatusRetryScheduled

	if err := e.broker.Enqueue(context.WithoutCancel(ctx), &next, broker.WithDelay(delay)); err != nil {
		// Could not schedule the retry; leave the delivery unsettled so the
		// visibility timeout redelivers it instead of losing the invocation.
		log.ErrorContext(ctx, "retry enqueue failed, leaving lease to expire",
			slog.String("error", err.Error()))
		return
	}
	if err := e.results.SetStatus(ctx, &next, cause.Error()); err != nil {
		log.WarnContext(ctx, "status update failed", slog.String("error", err.Error()))
	}
	if err := d.Ack(context.WithoutCancel(ctx)); err != nil {
		log.WarnContext(ctx, "ack failed", slog.String("error", err.Error()))
	}
	if h := e.hooks.AfterRetry; h != nil {
		e.callHook(ctx, "after_retry", func() { h(ctx, &next, cause) })
	}
	e.publish(ctx, monitor.Event{Kind: monitor.EventRetry, InvocationID: inv.ID,
		TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
		Attempt: next.Attempt, Err: cause, At: time.Now()})
	log.WarnContext(ctx, "invocation scheduled for retry",
		slog.Int("attempt", int(next.Attempt)),
		slog.Duration("delay", delay),
		slog.String("error", cause.Error()))
}

// deadLetter records the invocation and permanently removes it from the
// broker. A dead-lettered invocation is never retried.
func (e *Executor) deadLetter(ctx context.Context, log *slog.Logger, d *broker.Delivery, cause error) {
	inv := d.Invocation
	inv.Attempt++
	inv.Status = task.StatusDeadLettered

	if e.dlq != nil {
		if _, err := e.dlq.Put(context.WithoutCancel(ctx), inv, cause.Error()); err != nil {
			// Keep the lease unsettled so the invocation is not silently
			// dropped while the store is down.
			log.ErrorContext(ctx, "dead-letter store put failed, leaving lease to expire",
				slog.String("error", err.Error()))
			inv.Attempt--
			inv.Status = task.StatusRunning
			return
		}
	}
	if err := e.results.SetStatus(ctx, inv, cause.Error()); err != nil {
		log.WarnContext(ctx, "status update failed", slog.String("error", err.Error()))
	}
	if err := d.Ack(context.WithoutCancel(ctx)); err != nil {
		log.WarnContext(ctx, "ack failed", slog.String("error", err.Error()))
	}
	if h := e.hooks.AfterFailure; h != nil {
		e.callHook(ctx, "after_failure", func() { h(ctx, inv, cause) })
	}
	e.publish(ctx, monitor.Event{Kind: monitor.EventDeadLetter, InvocationID: inv.ID,
		TaskName: inv.TaskName, Queue: inv.Queue, TenantID: inv.TenantID,
		Attempt: inv.Attempt, Err: cause, At: time.Now()})
	log.ErrorContext(ctx, "invocation dead-lettered",
		slog.Int("attempt", int(inv.Attempt)),
		slog.String("error", cause.Error()))
}

// limiterFor returns the per-process limiter for the definition, creating it
// on first use. Nil when the task has no rate limit.
func (e *Executor) limiterFor(def *task.Definition) *rate.Limiter {
	if def.RateLimit <= 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	lim, ok := e.limiters[def.Name]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(def.RateLimit), def.RateBurst)
		e.limiters[def.Name] = lim
	}
	return lim
}

func (e *Executor) publish(ctx context.Context, ev monitor.Event) {
	if e.dispatcher != nil {
		e.dispatcher.Publish(ctx, ev)
	}
}
