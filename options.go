package taskq

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduforge/taskq/pkg/beat"
	"github.com/eduforge/taskq/pkg/broker"
	"github.com/eduforge/taskq/pkg/deadletter"
	"github.com/eduforge/taskq/pkg/executor"
	"github.com/eduforge/taskq/pkg/monitor"
	"github.com/eduforge/taskq/pkg/result"
)

const (
	connRetryInterval   = 5 * time.Second
	connTimeout         = 30 * time.Second
	pgHealthcheckPeriod = time.Minute
	pgMaxConnIdleTime   = 10 * time.Minute
	pgMaxConnLifetime   = 30 * time.Minute

	purgeInterval = time.Hour
)

// redisClient wraps the optional shared connection so setup helpers can tell
// "not connected" apart from "connected".
type redisClient struct {
	client *redis.Client
}

// injected collects option-provided dependencies consumed during New.
type injected struct {
	broker      broker.Broker
	dlq         deadletter.Store
	results     result.Backend
	hooks       executor.Hooks
	observers   []monitor.Observer
	beatEntries []beat.Entry
	beatLease   beat.Lease
}

// ServiceOption configures New.
type ServiceOption func(*Service, *injected)

// WithLogger sets the logger for all components. Defaults to slog.Default.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service, _ *injected) {
		if log != nil {
			s.log = log
		}
	}
}

// WithBroker injects a broker instead of connecting to BrokerURL. Used by
// tests and single-process deployments with broker.NewMemoryBroker.
func WithBroker(b broker.Broker) ServiceOption {
	return func(_ *Service, in *injected) { in.broker = b }
}

// WithDeadLetterStore injects a dead-letter store, overriding the
// configuration-driven choice.
func WithDeadLetterStore(store deadletter.Store) ServiceOption {
	return func(_ *Service, in *injected) { in.dlq = store }
}

// WithResultBackend injects a result backend, overriding the
// configuration-driven choice.
func WithResultBackend(b result.Backend) ServiceOption {
	return func(_ *Service, in *injected) { in.results = b }
}

// WithHooks sets executor lifecycle hooks.
func WithHooks(h executor.Hooks) ServiceOption {
	return func(_ *Service, in *injected) { in.hooks = h }
}

// WithObservers registers monitor observers in addition to the built-in
// metrics collector.
func WithObservers(obs ...monitor.Observer) ServiceOption {
	return func(_ *Service, in *injected) { in.observers = append(in.observers, obs...) }
}

// WithBeatEntries adds periodic entries to the schedule table, merged with
// any entries loaded from BeatScheduleFile.
func WithBeatEntries(entries ...beat.Entry) ServiceOption {
	return func(_ *Service, in *injected) { in.beatEntries = append(in.beatEntries, entries...) }
}

// WithBeatLease injects the emission lease, overriding the Redis-backed
// default.
func WithBeatLease(l beat.Lease) ServiceOption {
	return func(_ *Service, in *injected) { in.beatLease = l }
}

// WithHealthcheck adds a named probe to the monitor's health endpoint.
func WithHealthcheck(name string, check monitor.Healthcheck) ServiceOption {
	return func(s *Service, _ *injected) {
		if name != "" && check != nil {
			s.checks[name] = check
		}
	}
}
