package beat

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Owner-checked renew and release. Plain SET XX would let a process that lost
// the lease and saw it reacquired extend someone else's hold.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLease is a Lease backed by a single Redis key with SET NX PX.
type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
}

// NewRedisLease creates a lease on {keyPrefix}:beat:lease identified by owner.
// Owner must be unique per process; a host+pid or UUID string works.
func NewRedisLease(client *redis.Client, keyPrefix, owner string) *RedisLease {
	return &RedisLease{
		client: client,
		key:    keyPrefix + ":beat:lease",
		owner:  owner,
	}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// The key may already be ours from a previous run of this process.
	current, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	}
	if err != nil {
		return false, err
	}
	if current != l.owner {
		return false, nil
	}
	return l.Renew(ctx, ttl)
}

func (l *RedisLease) Renew(ctx context.Context, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}
