/*
Package lock serializes writers that share a key.

PURPOSE:
  Commission approvals for the same (professional, period) must not
  interleave their upsert and line-item replace. The store transaction
  already makes each approval atomic; the lock additionally guarantees
  that two approvals of the same key run one after the other, even across
  processes when the Redis implementation is used.

IMPLEMENTATIONS:
  Keyed: in-process, one mutex per key (default)
  Redis: bsm/redislock over go-redis, for multi-instance deployments
*/
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Keyed is an in-process Locker holding one mutex per key.
// Idle keys are dropped once no holder or waiter references them.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() { once.Do(func() { k.release(key, e, true) }) }, nil
}

func (k *Keyed) release(key string, e *keyedEntry, held bool) {
	if held {
		<-e.ch
	}
	k.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// Noop never blocks.
type Noop struct{}

func (Noop) Lock(context.Context, string) (func(), error) { return func() {}, nil }
