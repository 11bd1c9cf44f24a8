package lock

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/warp/salon-ledger/core"
)

// Redis is a Locker backed by a Redis key with a TTL.
// Waiters retry with linear backoff until ctx is done.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	prefix string
	retry  time.Duration
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		prefix: "salon-ledger:lock:",
		retry:  50 * time.Millisecond,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	l, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, core.ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Release with a fresh context; the caller's may already be done.
		_ = l.Release(context.Background())
	}, nil
}
