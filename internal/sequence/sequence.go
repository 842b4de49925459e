package sequence

import (
	"context"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// Allocator hands out purchase order numbers.
type Allocator interface {
	Next(ctx context.Context) (int64, error)
}

// MaxSource reports the highest number already assigned.
type MaxSource interface {
	MaxPONumber(ctx context.Context) (int64, error)
}

// MaxPlusOne reads the current maximum and adds one. Two callers that read
// before either writes get the same number; the store's uniqueness check is
// the only guard. Kept for compatibility with data migrated from systems that
// numbered this way.
type MaxPlusOne struct {
	source MaxSource
}

func NewMaxPlusOne(source MaxSource) *MaxPlusOne {
	return &MaxPlusOne{source: source}
}

func (m *MaxPlusOne) Next(ctx context.Context) (int64, error) {
	current, err := m.source.MaxPONumber(ctx)
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

// Counter is an in-process atomic counter seeded lazily from the store's
// current maximum. Safe for one process; use RedisCounter or the database
// sequence when several processes create orders.
type Counter struct {
	source MaxSource
	mu     sync.Mutex
	seeded bool
	last   int64
}

func NewCounter(source MaxSource) *Counter {
	return &Counter{source: source}
}

func (c *Counter) Next(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.seeded {
		current, err := c.source.MaxPONumber(ctx)
		if err != nil {
			return 0, err
		}
		c.last = current
		c.seeded = true
	}
	c.last++
	return c.last, nil
}

// RedisCounter uses INCR on a shared key. The key is seeded once from the
// store maximum with SETNX so numbering continues after a cold redis.
type RedisCounter struct {
	client *redis.Client
	source MaxSource
	key    string
}

func NewRedisCounter(client *redis.Client, source MaxSource, key string) *RedisCounter {
	if key == "" {
		key = "stockroom:seq:po_number"
	}
	return &RedisCounter{client: client, source: source, key: key}
}

func (r *RedisCounter) Next(ctx context.Context) (int64, error) {
	exists, err := r.client.Exists(ctx, r.key).Result()
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		current, err := r.source.MaxPONumber(ctx)
		if err != nil {
			return 0, err
		}
		if err := r.client.SetNX(ctx, r.key, current, 0).Err(); err != nil {
			return 0, fmt.Errorf("seed po counter: %w", err)
		}
	}
	return r.client.Incr(ctx, r.key).Result()
}
