package task

import "errors"

// Common errors
var (
	// ErrUnknownTask is returned when a task name cannot be resolved to any
	// registered definition. Unknown tasks are dead-lettered, never retried.
	ErrUnknownTask = errors.New("unknown task name")

	// ErrDuplicateTask is returned when registering a task name twice
	ErrDuplicateTask = errors.New("task already registered")

	// ErrEmptyTaskName is returned when registering a definition without a name
	ErrEmptyTaskName = errors.New("task name cannot be empty")

	// ErrNilHandler is returned when registering a definition without a handler
	ErrNilHandler = errors.New("task handler cannot be nil")

	// ErrInvalidPriority is returned when priority is outside valid range
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")
)

// RetryableError marks a handler failure as transient. The executor hands it
// to the retry policy, which re-enqueues the invocation until the retry budget
// is exhausted.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return "retryable: " + e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryable wraps err as a transient handler failure.
func NewRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// FatalError marks a handler failure as permanent. Fatal errors bypass the
// retry budget entirely and dead-letter the invocation immediately.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

// NewFatal wraps err as a permanent handler failure.
func NewFatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsFatal reports whether err was explicitly marked non-retryable, either as a
// FatalError or an unknown task.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe) || errors.Is(err, ErrUnknownTask)
}

// IsRetryable reports whether err should be handed to the retry policy.
// Errors are retryable unless explicitly fatal; handlers opt out of retries,
// they never opt in.
func IsRetryable(err error) bool {
	return err != nil && !IsFatal(err)
}
