// Package executor runs the worker pool that pulls invocations from the
// broker, scopes tenant context, invokes handlers, and applies the retry
// policy to failures.
//
// The pool is a fixed set of N workers per process. Each worker pulls one
// invocation at a time (pull-based, never push), attaches the tenant context
// for exactly the duration of the handler call, and detaches it
// unconditionally afterwards, even on panic.
//
// Handler errors are classified strictly at the executor boundary and never
// escape to crash a worker: fatal errors and unknown tasks dead-letter
// immediately, everything else is handed to the retry policy until the budget
// is exhausted. Each invocation runs under a soft time limit (the handler's
// context is cancelled so it may clean up) and a hard time limit (the
// invocation is abandoned unacked and the broker redelivers it).
//
// On shutdown workers stop pulling and get a bounded grace period to finish
// in-flight work; whatever exceeds it is forcibly cancelled and left unacked.
package executor
