package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/salon-ledger/core"
	"github.com/warp/salon-ledger/lock"
)

// Runs only against a real server: SALON_TEST_REDIS_ADDR=localhost:6379.
func TestRedis_ExclusiveAndReleased(t *testing.T) {
	addr := os.Getenv("SALON_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SALON_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	l := lock.NewRedis(rdb, 2*time.Second)
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, core.ErrLockNotObtained)

	unlock()
	again, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	again()
}
