package beat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists per-entry last-fire times so a lease takeover does not
// re-emit invocations the previous holder already enqueued.
type Store interface {
	// LastFire returns the recorded fire time for the entry, or the zero
	// time when the entry has never fired.
	LastFire(ctx context.Context, entry string) (time.Time, error)
	// SetLastFire records the fire time for the entry.
	SetLastFire(ctx context.Context, entry string, at time.Time) error
}

// MemoryStore is an in-process Store for tests and single-process runs.
type MemoryStore struct {
	mu    sync.RWMutex
	fires map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{fires: make(map[string]time.Time)}
}

func (s *MemoryStore) LastFire(_ context.Context, entry string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fires[entry], nil
}

func (s *MemoryStore) SetLastFire(_ context.Context, entry string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fires[entry] = at
	return nil
}

// RedisStore keeps last-fire times in one hash, shared by all processes
// contending for the lease.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a Store on the {keyPrefix}:beat:lastfire hash.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, key: keyPrefix + ":beat:lastfire"}
}

func (s *RedisStore) LastFire(ctx context.Context, entry string) (time.Time, error) {
	val, err := s.client.HGet(ctx, s.key, entry).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s *RedisStore) SetLastFire(ctx context.Context, entry string, at time.Time) error {
	return s.client.HSet(ctx, s.key, entry, at.UnixMilli()).Err()
}
