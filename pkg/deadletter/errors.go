package deadletter

import "errors"

// Common errors
var (
	// ErrRecordNotFound is returned when a record does not exist or was purged
	ErrRecordNotFound = errors.New("dead letter record not found")

	// ErrNilInvocation is returned when recording a nil invocation
	ErrNilInvocation = errors.New("invocation cannot be nil")
)
