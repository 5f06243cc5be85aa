package pgconn

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrInvalidConfig is returned when the connection string cannot be
	// parsed.
	ErrInvalidConfig = errors.New("pgconn: invalid connection config")

	// ErrNotReady is returned when the database did not answer within the
	// retry budget.
	ErrNotReady = errors.New("pgconn: postgres did not become ready in time")

	// ErrHealthcheckFailed wraps ping failures from the health probe.
	ErrHealthcheckFailed = errors.New("pgconn: healthcheck failed")
)

// IsNotFound reports whether err is pgx's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
