package taskq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/eduforge/taskq/pkg/beat"
	"github.com/eduforge/taskq/pkg/broker"
	"github.com/eduforge/taskq/pkg/config"
	"github.com/eduforge/taskq/pkg/deadletter"
	"github.com/eduforge/taskq/pkg/executor"
	"github.com/eduforge/taskq/pkg/monitor"
	"github.com/eduforge/taskq/pkg/pgconn"
	"github.com/eduforge/taskq/pkg/redisconn"
	"github.com/eduforge/taskq/pkg/result"
	"github.com/eduforge/taskq/pkg/retry"
	"github.com/eduforge/taskq/pkg/task"

	"github.com/google/uuid"
)

// Service assembles the full subsystem from one configuration: registry,
// broker, worker pool, beat scheduler, dead-letter store, result backend, and
// monitor. Construct with New; every dependency is held by the struct, so
// tests can run several isolated instances side by side.
type Service struct {
	cfg config.Config
	log *slog.Logger

	registry   *task.Registry
	broker     broker.Broker
	dlq        deadletter.Store
	results    result.Backend
	dispatcher *monitor.Dispatcher
	metrics    *monitor.Metrics
	exec       *executor.Executor
	beatSched  *beat.Scheduler

	checks  map[string]monitor.Healthcheck
	closers []func() error
}

// New wires a Service. Backends not injected through options are built from
// the configuration: the broker and beat lease from BrokerURL, the result
// backend from ResultBackendURL (or a no-op when empty), and the dead-letter
// store from DeadLetterDatabaseURL, falling back to the broker's Redis.
func New(ctx context.Context, cfg config.Config, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		log:    slog.Default(),
		checks: make(map[string]monitor.Healthcheck),
	}
	var inject injected
	for _, opt := range opts {
		opt(s, &inject)
	}

	s.registry = task.NewRegistry(task.WithRegistryLogger(s.log))

	redisClient, err := s.setupBroker(ctx, inject)
	if err != nil {
		return nil, err
	}
	if err := s.setupResultBackend(ctx, inject); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if err := s.setupDeadLetters(ctx, inject, redisClient); err != nil {
		return nil, errors.Join(err, s.Close())
	}

	s.dispatcher = monitor.NewDispatcher(monitor.WithDispatcherLogger(s.log))
	s.metrics = monitor.NewMetrics()
	s.dispatcher.Register(s.metrics)
	for _, obs := range inject.observers {
		s.dispatcher.Register(obs)
	}

	s.exec, err = executor.New(s.broker, s.registry,
		executor.WithQueues(cfg.Queues...),
		executor.WithConcurrency(cfg.WorkerConcurrency),
		executor.WithSoftTimeLimit(cfg.SoftTimeLimit),
		executor.WithHardTimeLimit(cfg.HardTimeLimit),
		executor.WithShutdownGrace(cfg.ShutdownGrace),
		executor.WithDeadLetterStore(s.dlq),
		executor.WithResultBackend(s.results),
		executor.WithDispatcher(s.dispatcher),
		executor.WithHooks(inject.hooks),
		executor.WithLogger(s.log),
	)
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}

	s.registerGauges()

	if err := s.setupBeat(inject, redisClient); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// setupBroker connects the configured broker unless one was injected. The
// returned client is nil for injected brokers and is reused for the
// dead-letter fallback and beat lease.
func (s *Service) setupBroker(ctx context.Context, inject injected) (redisClient, error) {
	if inject.broker != nil {
		s.broker = inject.broker
		return redisClient{}, nil
	}

	client, err := redisconn.Connect(ctx, redisconn.Config{
		ConnectionURL:  s.cfg.BrokerURL,
		RetryAttempts:  3,
		RetryInterval:  connRetryInterval,
		ConnectTimeout: connTimeout,
	})
	if err != nil {
		return redisClient{}, fmt.Errorf("connect broker: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	s.checks["broker"] = redisconn.Healthcheck(client)

	s.broker = broker.NewRedisBroker(client,
		broker.WithKeyPrefix(s.cfg.KeyPrefix),
		broker.WithRedisVisibilityTimeout(s.cfg.VisibilityTimeout),
	)
	return redisClient{client: client}, nil
}

func (s *Service) setupResultBackend(ctx context.Context, inject injected) error {
	if inject.results != nil {
		s.results = inject.results
		return nil
	}
	if s.cfg.ResultBackendURL == "" {
		s.results = result.NewNoopBackend()
		return nil
	}

	client, err := redisconn.Connect(ctx, redisconn.Config{
		ConnectionURL:  s.cfg.ResultBackendURL,
		RetryAttempts:  3,
		RetryInterval:  connRetryInterval,
		ConnectTimeout: connTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect result backend: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	s.checks["result_backend"] = redisconn.Healthcheck(client)
	s.results = result.NewRedisBackend(client, s.cfg.KeyPrefix, result.DefaultStatusTTL)
	return nil
}

func (s *Service) setupDeadLetters(ctx context.Context, inject injected, rc redisClient) error {
	if inject.dlq != nil {
		s.dlq = inject.dlq
		return nil
	}
	if s.cfg.DeadLetterDatabaseURL != "" {
		pool, err := pgconn.Connect(ctx, pgconn.Config{
			ConnectionString:  s.cfg.DeadLetterDatabaseURL,
			MaxOpenConns:      10,
			MaxIdleConns:      5,
			HealthCheckPeriod: pgHealthcheckPeriod,
			MaxConnIdleTime:   pgMaxConnIdleTime,
			MaxConnLifetime:   pgMaxConnLifetime,
			RetryAttempts:     3,
			RetryInterval:     connRetryInterval,
		})
		if err != nil {
			return fmt.Errorf("connect dead-letter store: %w", err)
		}
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})
		s.checks["dead_letters"] = pgconn.Healthcheck(pool)

		store := deadletter.NewPostgresStore(pool, s.cfg.Retention())
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate dead-letter store: %w", err)
		}
		s.dlq = store
		return nil
	}
	if rc.client != nil {
		s.dlq = deadletter.NewRedisStore(rc.client, s.cfg.KeyPrefix, s.cfg.Retention())
		return nil
	}
	// Injected broker and no database configured; keep records in process.
	s.dlq = deadletter.NewMemoryStore(s.cfg.Retention())
	return nil
}

// setupBeat builds the scheduler when the schedule table is non-empty. With a
// Redis connection the lease and last-fire store are shared across processes;
// otherwise they are in-process.
func (s *Service) setupBeat(inject injected, rc redisClient) error {
	entries := inject.beatEntries
	if s.cfg.BeatScheduleFile != "" {
		f, err := os.Open(s.cfg.BeatScheduleFile)
		if err != nil {
			return fmt.Errorf("open schedule table: %w", err)
		}
		defer f.Close()
		loaded, err := beat.LoadTable(f)
		if err != nil {
			return err
		}
		entries = append(entries, loaded...)
	}
	if len(entries) == 0 {
		return nil
	}

	beatOpts := []beat.SchedulerOption{
		beat.WithLeaseTTL(s.cfg.BeatLockTTL),
		beat.WithSchedulerLogger(s.log),
	}
	if inject.beatLease != nil {
		beatOpts = append(beatOpts, beat.WithLease(inject.beatLease))
	} else if rc.client != nil {
		owner := uuid.NewString()
		beatOpts = append(beatOpts,
			beat.WithLease(beat.NewRedisLease(rc.client, s.cfg.KeyPrefix, owner)),
			beat.WithStore(beat.NewRedisStore(rc.client, s.cfg.KeyPrefix)),
		)
	}

	sched, err := beat.NewScheduler(s.emitPeriodic, beatOpts...)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := sched.Add(e); err != nil {
			return err
		}
	}
	s.beatSched = sched
	return nil
}

func (s *Service) registerGauges() {
	for _, queue := range s.cfg.Queues {
		q := queue
		s.metrics.RegisterGauge("queue_depth:"+q, func(ctx context.Context) float64 {
			depth, err := s.broker.QueueDepth(ctx, q)
			if err != nil {
				return -1
			}
			return float64(depth)
		})
	}
	s.metrics.RegisterGauge("active_workers", func(context.Context) float64 {
		return float64(s.exec.ActiveWorkers())
	})
}

// Register adds a task definition. Definitions with a zero retry policy get
// the configured defaults. Must be called before Run.
func (s *Service) Register(def task.Definition) error {
	if def.Retry == (retry.Policy{}) {
		def.Retry = retry.Policy{
			MaxRetries: s.cfg.MaxRetries,
			BaseDelay:  s.cfg.BaseRetryDelay,
			MaxDelay:   s.cfg.MaxRetryDelay,
		}
	}
	return s.registry.Register(def)
}

// Observers returns the dispatcher for registering additional observers
// before Run.
func (s *Service) Observers() *monitor.Dispatcher {
	return s.dispatcher
}

// Metrics exposes the metrics observer, mainly for tests and embedding.
func (s *Service) Metrics() *monitor.Metrics {
	return s.metrics
}

// Close releases all connections the Service opened. Safe to call after a
// failed New.
func (s *Service) Close() error {
	var errs []error
	if s.broker != nil {
		errs = append(errs, s.broker.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
