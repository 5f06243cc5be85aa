package result

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

// DefaultStatusTTL bounds how long a status stays pollable after its last
// transition.
const DefaultStatusTTL = 24 * time.Hour

// RedisBackend persists invocation statuses in Redis, one key per invocation
// with a TTL refreshed on every transition.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisBackend creates a Redis-backed result backend. A non-positive ttl
// falls back to DefaultStatusTTL.
func NewRedisBackend(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = "taskq"
	}
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisBackend{client: client, prefix: keyPrefix, ttl: ttl}
}

func (b *RedisBackend) statusKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:status:%s", b.prefix, id)
}

// SetStatus implements Backend.
func (b *RedisBackend) SetStatus(ctx context.Context, inv *task.Invocation, errMsg string) error {
	info := StatusInfo{
		InvocationID: inv.ID,
		TaskName:     inv.TaskName,
		Status:       inv.Status,
		Attempt:      inv.Attempt,
		Error:        errMsg,
		UpdatedAt:    time.Now(),
	}
	body, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal status for invocation %s: %w", inv.ID, err)
	}
	if err := b.client.Set(ctx, b.statusKey(inv.ID), body, b.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store status for invocation %s: %w", inv.ID, err)
	}
	return nil
}

// GetStatus implements Backend.
func (b *RedisBackend) GetStatus(ctx context.Context, invocationID uuid.UUID) (*StatusInfo, error) {
	body, err := b.client.Get(ctx, b.statusKey(invocationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status for invocation %s: %w", invocationID, err)
	}

	var info StatusInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode status for invocation %s: %w", invocationID, err)
	}
	return &info, nil
}
