// Package task defines the invocation data model and the registry/router that
// maps task names to handlers, queues, and retry policies.
//
// A TaskDefinition is registered once at startup and is immutable afterwards.
// The string task name stays at the process boundary (it travels inside broker
// messages); the Registry resolves it eagerly into a typed Route, failing fast
// on duplicates at registration time rather than at dispatch time.
//
// Resolution order is exact name match, then longest registered prefix match,
// then the configured default queue with a logged warning. A name that cannot
// be resolved at all fails with ErrUnknownTask and is never retried.
package task
