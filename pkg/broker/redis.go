package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eduforge/taskq/pkg/task"
)

// envelope is the wire form of one queued invocation instance. The token makes
// the sorted-set member unique, so the same invocation re-enqueued for retry
// never collides with an older copy still in flight.
type envelope struct {
	Token      uuid.UUID        `json:"token"`
	Invocation *task.Invocation `json:"invocation"`
}

// RedisOption configures a RedisBroker.
type RedisOption func(*redisOptions)

type redisOptions struct {
	keyPrefix         string
	visibilityTimeout time.Duration
	sweepInterval     time.Duration
	pollInterval      time.Duration
}

// WithKeyPrefix namespaces all broker keys, allowing several deployments to
// share one Redis database.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithRedisVisibilityTimeout sets the lease duration for dequeued invocations.
func WithRedisVisibilityTimeout(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		if d > 0 {
			o.visibilityTimeout = d
		}
	}
}

// WithRedisSweepInterval sets how often expired leases are returned to ready.
func WithRedisSweepInterval(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithRedisPollInterval sets how often a blocked Dequeue re-checks for work.
func WithRedisPollInterval(d time.Duration) RedisOption {
	return func(o *redisOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// Claim is ZREM plus ZADD in one step. Done client-side, a consumer dying
// between the two calls would leave the member in neither set, lost forever.
var claimScript = redis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 1 then
	redis.call("ZADD", KEYS[2], ARGV[2], ARGV[1])
	return 1
end
return 0`)

// RedisBroker is a Broker backed by Redis sorted sets.
//
// Layout per queue and priority tier:
//
//	{prefix}:q:{queue}:ready:{tier}  zset: member=envelope, score=ready time (ms)
//	{prefix}:q:{queue}:inflight      zset: member=envelope, score=lease deadline (ms)
//	{prefix}:queues                  set of queue names, for the sweeper
//
// Claiming moves the due member from ready to inflight in one scripted step,
// so only one of several racing consumers wins and a consumer crash can never
// strand the member outside both sets. go-redis reconnects dropped connections
// itself; operations that still fail surface as ErrBrokerUnavailable and
// in-flight leases are redelivered by the sweeper after the visibility
// timeout.
type RedisBroker struct {
	client *redis.Client
	prefix string

	visibilityTimeout time.Duration
	pollInterval      time.Duration

	sweepTicker *time.Ticker
	done        chan struct{}
}

// NewRedisBroker creates a Redis-backed broker and starts its lease sweeper.
func NewRedisBroker(client *redis.Client, opts ...RedisOption) *RedisBroker {
	options := &redisOptions{
		keyPrefix:         "taskq",
		visibilityTimeout: 5 * time.Minute,
		sweepInterval:     5 * time.Second,
		pollInterval:      time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	b := &RedisBroker{
		client:            client,
		prefix:            options.keyPrefix,
		visibilityTimeout: options.visibilityTimeout,
		pollInterval:      options.pollInterval,
		done:              make(chan struct{}),
	}

	b.sweepTicker = time.NewTicker(options.sweepInterval)
	go b.sweepLoop()

	return b
}

func (b *RedisBroker) readyKey(queue string, tier int) string {
	return fmt.Sprintf("%s:q:%s:ready:%d", b.prefix, queue, tier)
}

func (b *RedisBroker) inflightKey(queue string) string {
	return fmt.Sprintf("%s:q:%s:inflight", b.prefix, queue)
}

func (b *RedisBroker) queuesKey() string {
	return b.prefix + ":queues"
}

// Enqueue implements Broker.
func (b *RedisBroker) Enqueue(ctx context.Context, inv *task.Invocation, opts ...EnqueueOption) error {
	if inv == nil {
		return ErrNilInvocation
	}

	body, err := json.Marshal(envelope{Token: uuid.New(), Invocation: inv})
	if err != nil {
		return fmt.Errorf("failed to marshal invocation %s: %w", inv.ID, err)
	}

	readyAt := resolveReadyAt(time.Now(), opts)

	pipe := b.client.TxPipeline()
	pipe.ZAdd(ctx, b.readyKey(inv.Queue, tierFor(inv.Priority)), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: body,
	})
	pipe.SAdd(ctx, b.queuesKey(), inv.Queue)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Join(ErrBrokerUnavailable, err)
	}

	return nil
}

// Dequeue implements Broker. It polls priority tiers from highest to lowest
// until a due invocation is claimed or ctx is done.
func (b *RedisBroker) Dequeue(ctx context.Context, queue string) (*Delivery, error) {
	for {
		d, err := b.tryClaim(ctx, queue)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.done:
			return nil, ErrClosed
		case <-time.After(b.pollInterval):
		}
	}
}

func (b *RedisBroker) tryClaim(ctx context.Context, queue string) (*Delivery, error) {
	now := time.Now()
	maxScore := fmt.Sprintf("%d", now.UnixMilli())

	for tier := tierCount - 1; tier >= 0; tier-- {
		key := b.readyKey(queue, tier)

		members, err := b.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf", Max: maxScore, Count: 8,
		}).Result()
		if err != nil {
			return nil, errors.Join(ErrBrokerUnavailable, err)
		}

		for _, member := range members {
			deadline := now.Add(b.visibilityTimeout)

			// Whoever moves the member to inflight owns it.
			won, err := claimScript.Run(ctx, b.client,
				[]string{key, b.inflightKey(queue)},
				member, deadline.UnixMilli(),
			).Int()
			if err != nil {
				return nil, errors.Join(ErrBrokerUnavailable, err)
			}
			if won == 0 {
				continue // Another consumer won the race.
			}

			var env envelope
			if err := json.Unmarshal([]byte(member), &env); err != nil {
				// Poison member: drop it rather than wedge the queue.
				_ = b.client.ZRem(ctx, b.inflightKey(queue), member).Err()
				return nil, fmt.Errorf("failed to decode queued invocation: %w", err)
			}

			return &Delivery{
				Invocation: env.Invocation,
				Token:      env.Token,
				Deadline:   deadline,
				via:        &redisSettler{broker: b, member: member, queue: queue},
			}, nil
		}
	}

	return nil, nil
}

// QueueDepth implements Broker.
func (b *RedisBroker) QueueDepth(ctx context.Context, queue string) (int64, error) {
	var depth int64
	for tier := range tierCount {
		n, err := b.client.ZCard(ctx, b.readyKey(queue, tier)).Result()
		if err != nil {
			return 0, errors.Join(ErrBrokerUnavailable, err)
		}
		depth += n
	}
	return depth, nil
}

// Close implements Broker. The Redis client itself is owned by the caller.
func (b *RedisBroker) Close() error {
	select {
	case <-b.done:
		return nil
	default:
	}
	close(b.done)
	b.sweepTicker.Stop()
	return nil
}

// sweepLoop returns expired leases to their ready sets so invocations claimed
// by crashed workers are redelivered.
func (b *RedisBroker) sweepLoop() {
	for {
		select {
		case <-b.done:
			return
		case <-b.sweepTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			b.sweepExpired(ctx)
			cancel()
		}
	}
}

func (b *RedisBroker) sweepExpired(ctx context.Context) {
	queues, err := b.client.SMembers(ctx, b.queuesKey()).Result()
	if err != nil {
		return
	}

	maxScore := fmt.Sprintf("%d", time.Now().UnixMilli())
	for _, queue := range queues {
		expired, err := b.client.ZRangeByScore(ctx, b.inflightKey(queue), &redis.ZRangeBy{
			Min: "-inf", Max: maxScore,
		}).Result()
		if err != nil {
			continue
		}

		for _, member := range expired {
			removed, err := b.client.ZRem(ctx, b.inflightKey(queue), member).Result()
			if err != nil || removed == 0 {
				continue
			}

			var env envelope
			if err := json.Unmarshal([]byte(member), &env); err != nil {
				continue // Poison member; do not resurrect.
			}

			_ = b.client.ZAdd(ctx, b.readyKey(queue, tierFor(env.Invocation.Priority)), redis.Z{
				Score:  float64(time.Now().UnixMilli()),
				Member: member,
			}).Err()
		}
	}
}

// redisSettler settles one Redis lease.
type redisSettler struct {
	broker *RedisBroker
	member string
	queue  string
}

func (s *redisSettler) ack(ctx context.Context, _ *Delivery) error {
	if err := s.broker.client.ZRem(ctx, s.broker.inflightKey(s.queue), s.member).Err(); err != nil {
		return errors.Join(ErrBrokerUnavailable, err)
	}
	return nil
}

func (s *redisSettler) nack(ctx context.Context, d *Delivery) error {
	removed, err := s.broker.client.ZRem(ctx, s.broker.inflightKey(s.queue), s.member).Result()
	if err != nil {
		return errors.Join(ErrBrokerUnavailable, err)
	}
	if removed == 0 {
		// Lease already expired and was swept back.
		return nil
	}
	if err := s.broker.client.ZAdd(ctx, s.broker.readyKey(s.queue, tierFor(d.Invocation.Priority)), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: s.member,
	}).Err(); err != nil {
		return errors.Join(ErrBrokerUnavailable, err)
	}
	return nil
}
