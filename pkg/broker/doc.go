// Package broker provides the durable, priority-aware message channel between
// producers and workers, with at-least-once delivery semantics.
//
// A dequeued invocation is leased, not removed: it stays invisible to other
// consumers until its visibility deadline, then is automatically redelivered
// if the consumer never acked. Consumers therefore must tolerate duplicate
// delivery; the broker guarantees at-least-once, never exactly-once.
//
// Ordering is FIFO-ish within one priority tier of one queue only. Delayed
// and retried invocations are realized as scheduled redelivery times, not
// sleeping goroutines, so they interleave with newer work once due.
//
// Two implementations ship with the package: MemoryBroker for tests and local
// development, and RedisBroker for production deployments.
package broker
