package task

import (
	"context"
	"encoding/json"
)

type (
	// Handler executes invocations of a single task. The tenant context for
	// the invocation rides on ctx and is valid only for the duration of the
	// call. Handlers signal permanent failure with NewFatal; any other
	// non-nil error is treated as transient and retried.
	//
	// Delivery is at-least-once: a handler may observe the same invocation
	// twice after a crash or visibility-timeout redelivery, so side effects
	// must be idempotent.
	Handler interface {
		Handle(ctx context.Context, args json.RawMessage) error
	}

	// HandlerFunc adapts a plain function to the Handler interface.
	HandlerFunc func(ctx context.Context, args json.RawMessage) error

	// TypedHandlerFunc is a handler over a decoded payload of type T.
	TypedHandlerFunc[T any] func(ctx context.Context, args T) error
)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, args json.RawMessage) error {
	return f(ctx, args)
}

// NewHandler wraps a typed handler function, decoding the invocation args
// into T before the call. A payload that does not decode is a permanent
// failure: retrying cannot fix malformed arguments.
func NewHandler[T any](fn TypedHandlerFunc[T]) Handler {
	return HandlerFunc(func(ctx context.Context, args json.RawMessage) error {
		var payload T
		if len(args) > 0 {
			if err := json.Unmarshal(args, &payload); err != nil {
				return NewFatal(err)
			}
		}
		return fn(ctx, payload)
	})
}
