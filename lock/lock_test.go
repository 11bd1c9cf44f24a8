package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/salon-ledger/lock"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := lock.NewKeyed()
	ctx := context.Background()

	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := k.Lock(ctx, "commission:approve:p1:2025-03")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	k := lock.NewKeyed()
	ctx := context.Background()

	unlockA, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyed_ContextCancelWhileWaiting(t *testing.T) {
	k := lock.NewKeyed()

	unlock, err := k.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Releasing twice is harmless and the key becomes free again.
	unlock()
	unlock()
	again, err := k.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func TestNoop(t *testing.T) {
	var l lock.Locker = lock.Noop{}
	u1, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	u2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	u1()
	u2()
}
