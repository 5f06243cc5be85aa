package broker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduforge/taskq/pkg/broker"
	"github.com/eduforge/taskq/pkg/task"
)

// Integration tests against a live Redis. Set TASKQ_TEST_REDIS_URL to run,
// e.g. redis://localhost:6379/15. The suite flushes its own key prefix only.

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TASKQ_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TASKQ_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newRedisBroker(t *testing.T, opts ...broker.RedisOption) (*broker.RedisBroker, *redis.Client, string) {
	t.Helper()
	client := redisClient(t)
	prefix := "taskqtest:" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
	})
	b := broker.NewRedisBroker(client, append([]broker.RedisOption{
		broker.WithKeyPrefix(prefix),
		broker.WithRedisPollInterval(5 * time.Millisecond),
	}, opts...)...)
	t.Cleanup(func() { _ = b.Close() })
	return b, client, prefix
}

func redisInvocation(queue string) *task.Invocation {
	return &task.Invocation{
		ID:         uuid.New(),
		TaskName:   "quiz.score",
		Args:       json.RawMessage(`{}`),
		Queue:      queue,
		Priority:   task.PriorityDefault,
		Status:     task.StatusPending,
		EnqueuedAt: time.Now(),
	}
}

func TestRedisBroker_EnqueueDequeueAck(t *testing.T) {
	b, _, _ := newRedisBroker(t)
	ctx := context.Background()

	inv := redisInvocation("default")
	require.NoError(t, b.Enqueue(ctx, inv))

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	d, err := b.Dequeue(dctx, "default")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, d.Invocation.ID)
	require.NoError(t, d.Ack(ctx))

	depth, err := b.QueueDepth(ctx, "default")
	require.NoError(t, err)
	assert.Zero(t, depth)
}

// A claimed invocation must land in the inflight set in the same step that
// removes it from ready: a consumer crashing right after the claim leaves it
// leased, never stranded outside both sets.
func TestRedisBroker_ClaimedInvocationIsLeasedNotLost(t *testing.T) {
	b, client, prefix := newRedisBroker(t)
	ctx := context.Background()

	inv := redisInvocation("default")
	require.NoError(t, b.Enqueue(ctx, inv))

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	d, err := b.Dequeue(dctx, "default")
	require.NoError(t, err)
	require.Equal(t, inv.ID, d.Invocation.ID)

	// Simulate the crash: never settle. The member must sit in inflight.
	n, err := client.ZCard(ctx, prefix+":q:default:inflight").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for tier := 0; tier < 5; tier++ {
		n, err := client.ZCard(ctx, fmt.Sprintf("%s:q:default:ready:%d", prefix, tier)).Result()
		require.NoError(t, err)
		assert.Zero(t, n, "tier %d must not still hold the claimed member", tier)
	}
}

func TestRedisBroker_UnackedInvocationRedelivered(t *testing.T) {
	b, _, _ := newRedisBroker(t,
		broker.WithRedisVisibilityTimeout(100*time.Millisecond),
		broker.WithRedisSweepInterval(20*time.Millisecond),
	)
	ctx := context.Background()

	inv := redisInvocation("default")
	require.NoError(t, b.Enqueue(ctx, inv))

	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	first, err := b.Dequeue(dctx, "default")
	require.NoError(t, err)

	// Abandon the lease; the sweeper must return the invocation to ready.
	second, err := b.Dequeue(dctx, "default")
	require.NoError(t, err)
	assert.Equal(t, first.Invocation.ID, second.Invocation.ID)
	require.NoError(t, second.Ack(ctx))
}

func TestRedisBroker_ConcurrentConsumersClaimOnce(t *testing.T) {
	b, _, _ := newRedisBroker(t)
	ctx := context.Background()

	const total = 20
	want := make(map[uuid.UUID]struct{}, total)
	for range total {
		inv := redisInvocation("default")
		want[inv.ID] = struct{}{}
		require.NoError(t, b.Enqueue(ctx, inv))
	}

	var (
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int, total)
		wg   sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				dctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
				d, err := b.Dequeue(dctx, "default")
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				seen[d.Invocation.ID]++
				mu.Unlock()
				_ = d.Ack(ctx)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for id := range want {
		assert.Equal(t, 1, seen[id], "invocation %s claimed more than once", id)
	}
}
