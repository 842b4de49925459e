package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	redis "github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when a distributed lock could not be obtained in time.
var ErrLockBusy = errors.New("resource is locked by another writer")

// Locker serializes writers on a key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func ItemLockKey(itemID string) string {
	return "item:" + itemID
}

// KeyedMutex is an in-process Locker with one slot per key. A waiter gives
// up with ctx.Err() when its context ends before the slot frees.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	slot chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{slot: make(chan struct{}, 1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			k.drop(key, entry)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, entry *keyedLock) {
	k.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// RedisLocker holds locks in redis so several processes share one writer per key.
// A contended Lock retries for about half the ttl before reporting ErrLockBusy.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	retries int
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		ttl:     ttl,
		retries: int(ttl / 2 / lockBackoff),
	}
}

const lockBackoff = 25 * time.Millisecond

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	// LimitRetry counts attempts inside the strategy, so each call needs its own.
	retry := redislock.LimitRetry(redislock.LinearBackoff(lockBackoff), r.retries)
	lock, err := r.client.Obtain(ctx, "stockroom:lock:"+key, r.ttl, &redislock.Options{RetryStrategy: retry})
	// Obtain bounds its own wait by the ttl when ctx has no deadline.
	if errors.Is(err, redislock.ErrNotObtained) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, nil
}
