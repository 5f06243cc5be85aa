package executor

import "errors"

var (
	// ErrExecutionTimeout marks a handler that exceeded its soft time limit.
	// The failure is retryable and follows the normal retry budget.
	ErrExecutionTimeout = errors.New("executor: execution time limit exceeded")

	// ErrAlreadyRunning is returned when Run is called on a pool that has
	// already been started.
	ErrAlreadyRunning = errors.New("executor: already running")

	// ErrNilBroker is returned when the pool is constructed without a broker.
	ErrNilBroker = errors.New("executor: nil broker")

	// ErrNilRegistry is returned when the pool is constructed without a
	// task registry.
	ErrNilRegistry = errors.New("executor: nil registry")
)
