// Package logger builds the slog.Logger used across the queue subsystem.
//
// The factory produces a JSON or text handler wrapped in a decorator that
// pulls attributes out of the context on every log call, so worker code logs
// through plain slog and tenant or invocation identity shows up without
// threading fields by hand:
//
//	log := logger.New(
//		logger.WithProduction("taskq-worker"),
//		logger.WithContextExtractors(tenant.LoggerExtractor()),
//	)
//
// The attr helpers (Error, TaskName, InvocationID, Queue) keep attribute keys
// consistent between components.
package logger
