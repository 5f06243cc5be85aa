// Package beat emits periodic task invocations from a static schedule table.
//
// Many processes may run a beat scheduler against the same table; a shared
// lease ensures only one of them emits at a time. When the holder dies, its
// lease expires and another process takes over. Last-fire times are persisted
// so a takeover does not re-emit invocations the previous holder already
// enqueued, and a late takeover emits at most one catch-up invocation per
// entry instead of a backlog burst.
//
// Schedules come in two families: calendar helpers (Every, DailyAt, WeeklyOn,
// MonthlyOn) and standard cron expressions via Cron, which also accepts
// descriptors like "@every 30s". Schedule tables can be declared in code or
// loaded from YAML.
package beat
