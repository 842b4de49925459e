package stock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexWaiterHonorsContext(t *testing.T) {
	locks := NewKeyedMutex()
	release, err := locks.Lock(context.Background(), "po:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "po:1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()

	again, err := locks.Lock(context.Background(), "po:1")
	require.NoError(t, err)
	again()

	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}

func TestKeyedMutexSeparateKeysDoNotBlock(t *testing.T) {
	locks := NewKeyedMutex()
	releaseA, err := locks.Lock(context.Background(), ItemLockKey("a"))
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := locks.Lock(ctx, ItemLockKey("b"))
	require.NoError(t, err)
	releaseB()
}

func TestKeyedMutexReleaseIsIdempotent(t *testing.T) {
	locks := NewKeyedMutex()
	release, err := locks.Lock(context.Background(), "acq:1")
	require.NoError(t, err)
	release()
	release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	next, err := locks.Lock(ctx, "acq:1")
	require.NoError(t, err)
	next()
}

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("STOCKROOM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOCKROOM_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestRedisLockerExcludesSecondWriter(t *testing.T) {
	rdb := newRedisTestClient(t)
	locks := NewRedisLocker(rdb, time.Second)
	key := "test:" + uuid.NewString()
	ctx := context.Background()

	release, err := locks.Lock(ctx, key)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = locks.Lock(ctx, key)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLockBusy), "expected ErrLockBusy, got %v", err)
	}

	release()

	again, err := locks.Lock(ctx, key)
	require.NoError(t, err)
	again()

	exists, err := rdb.Exists(ctx, "stockroom:lock:"+key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
