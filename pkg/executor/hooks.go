package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eduforge/taskq/pkg/task"
)

// Hooks are optional lifecycle callbacks invoked synchronously around each
// invocation. A panicking hook is recovered and logged; it never affects the
// outcome of the invocation it observes.
type Hooks struct {
	BeforeRun    func(ctx context.Context, inv *task.Invocation)
	AfterSuccess func(ctx context.Context, inv *task.Invocation)
	AfterFailure func(ctx context.Context, inv *task.Invocation, err error)
	AfterRetry   func(ctx context.Context, inv *task.Invocation, err error)
}

func (e *Executor) callHook(ctx context.Context, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "hook panicked",
				slog.String("hook", name),
				slog.String("error", fmt.Sprintf("%v", r)))
		}
	}()
	fn()
}
