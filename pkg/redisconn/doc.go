// Package redisconn establishes the Redis connection shared by the broker,
// result backend, and beat lease. Connect retries until the server answers a
// ping or the attempt budget runs out; Healthcheck returns a probe closure
// for the monitor's health endpoint.
package redisconn
