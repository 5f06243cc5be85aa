package deadletter

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

// RedisStore persists dead letters in Redis, one key per record with native
// TTL expiry plus a sorted-set index by recorded time for listing. Redis
// removes expired record bodies itself; Purge only trims the index.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed dead letter store. A non-positive
// retention falls back to DefaultRetention.
func NewRedisStore(client *redis.Client, keyPrefix string, retention time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "taskq"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		client:    client,
		prefix:    keyPrefix,
		retention: retention,
	}
}

func (s *RedisStore) recordKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:dlq:rec:%s", s.prefix, id)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":dlq:index"
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, inv *task.Invocation, reason string) (uuid.UUID, error) {
	if inv == nil {
		return uuid.UUID{}, ErrNilInvocation
	}

	now := time.Now()
	rec := &Record{
		ID:         uuid.New(),
		Invocation: *inv,
		Reason:     reason,
		RecordedAt: now,
		ExpiresAt:  now.Add(s.retention),
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to marshal dead letter record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(rec.ID), body, s.retention)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: rec.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return uuid.UUID{}, fmt.Errorf("failed to store dead letter record: %w", err)
	}

	return rec.ID, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	body, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dead letter record %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode dead letter record %s: %w", id, err)
	}
	return &rec, nil
}

// List implements Store. Filtering happens client-side after loading the
// index page; dead letter volumes are expected to stay small enough for that.
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*Record, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter index: %w", err)
	}

	matched := make([]*Record, 0)
	skipped := 0
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}

		rec, err := s.Get(ctx, id)
		if errors.Is(err, ErrRecordNotFound) {
			continue // Body expired; index trimmed on next Purge.
		}
		if err != nil {
			return nil, err
		}

		if !filter.matches(rec) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}

		matched = append(matched, rec)
		if filter.Limit > 0 && len(matched) >= filter.Limit {
			break
		}
	}

	return matched, nil
}

// Purge implements Store. Record bodies expire via Redis TTL; this removes
// index entries whose bodies are gone.
func (s *RedisStore) Purge(ctx context.Context, _ time.Time) (int64, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list dead letter index: %w", err)
	}

	var purged int64
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		exists, err := s.client.Exists(ctx, s.recordKey(id)).Result()
		if err != nil {
			return purged, fmt.Errorf("failed to check dead letter record %s: %w", id, err)
		}
		if exists == 0 {
			if err := s.client.ZRem(ctx, s.indexKey(), raw).Err(); err != nil {
				return purged, fmt.Errorf("failed to trim dead letter index: %w", err)
			}
			purged++
		}
	}

	return purged, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letter records: %w", err)
	}
	return n, nil
}
