package redisconn

import "errors"

var (
	// ErrInvalidURL is returned when the connection URL cannot be parsed.
	ErrInvalidURL = errors.New("redisconn: invalid connection URL")

	// ErrNotReady is returned when the server did not answer within the
	// retry budget.
	ErrNotReady = errors.New("redisconn: redis did not become ready in time")

	// ErrHealthcheckFailed wraps ping failures from the health probe.
	ErrHealthcheckFailed = errors.New("redisconn: healthcheck failed")
)
