// Package deadletter stores invocations that exhausted their retry budget or
// failed fatally, for operator inspection.
//
// Records are append-only snapshots: they are never mutated after Put and are
// purged once their retention window passes. The package performs no automatic
// replay; reprocessing a dead-lettered invocation is a manual, administrative
// action outside this subsystem.
//
// Three stores ship with the package: MemoryStore for tests, RedisStore with
// native TTL expiry, and PostgresStore for deployments that want dead letters
// queryable with SQL.
package deadletter
