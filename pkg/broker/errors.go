package broker

import "errors"

// Common errors
var (
	// ErrBrokerUnavailable is returned when the broker cannot be reached.
	// Enqueue fails fast; recovery is the caller's responsibility.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrNoMessage is returned by a dequeue that timed out with nothing to
	// deliver. This is normal, not a failure.
	ErrNoMessage = errors.New("no message available")

	// ErrClosed is returned when operating on a closed broker
	ErrClosed = errors.New("broker is closed")

	// ErrAlreadySettled is returned when a delivery is acked or nacked twice
	ErrAlreadySettled = errors.New("delivery already settled")

	// ErrNilInvocation is returned when enqueueing a nil invocation
	ErrNilInvocation = errors.New("invocation cannot be nil")
)
