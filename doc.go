// Package taskq is a tenant-aware background task execution and scheduling
// subsystem for multi-tenant services.
//
// Producers enqueue named task invocations with JSON arguments and a tenant
// identity; a pool of workers pulls them from a Redis-backed broker with
// at-least-once delivery, runs the registered handlers under per-invocation
// tenant context, and applies exponential-backoff retries until a budget is
// exhausted. Exhausted and fatal invocations land in a dead-letter store for
// inspection. A lease-protected beat scheduler emits periodic invocations
// from a schedule table, and a synchronous monitor fans lifecycle events out
// to metrics and custom observers.
//
// The Service type wires everything from one configuration struct:
//
//	var cfg config.Config
//	config.MustLoad(&cfg)
//
//	svc, err := taskq.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	svc.Register(task.Definition{
//		Name:    "report.generate",
//		Handler: task.NewHandler(generateReport),
//	})
//
//	if err := svc.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Every component is also usable on its own: pkg/broker, pkg/executor,
// pkg/beat, pkg/deadletter, pkg/result, and pkg/monitor take their
// dependencies explicitly, so tests and embedded deployments can assemble
// exactly the subset they need. There are no package-level registries.
//
// Delivery is at least once: a handler may run more than once for the same
// invocation after a crash or timeout, and deduplication is the handler's
// responsibility.
package taskq
