// Package pgconn establishes the PostgreSQL pool backing the durable
// dead-letter store. Connect retries with linear backoff so worker fleets
// restarting together do not hammer the database; Healthcheck returns a probe
// closure for the monitor's health endpoint.
package pgconn
