package monitor

import (
	"context"
	"log/slog"
	"sync"
)

// Observer receives lifecycle events. Implementations must not block for long:
// dispatch is synchronous on the worker's execution path.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx context.Context, e Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger used for observer failures.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Dispatcher delivers events to observers synchronously, in registration
// order. Safe for concurrent Publish from many workers.
type Dispatcher struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

// NewDispatcher creates an event dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds an observer. Observers are called in registration order.
func (d *Dispatcher) Register(obs Observer) {
	if obs == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, obs)
}

// Publish delivers the event to every observer. A panicking observer is
// logged and skipped; the remaining observers still run.
func (d *Dispatcher) Publish(ctx context.Context, e Event) {
	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()

	for _, obs := range observers {
		d.publishOne(ctx, obs, e)
	}
}

func (d *Dispatcher) publishOne(ctx context.Context, obs Observer, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked",
				slog.String("event", string(e.Kind)),
				slog.String("task_name", e.TaskName),
				slog.Any("panic", r))
		}
	}()
	obs.Observe(ctx, e)
}
