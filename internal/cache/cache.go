package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ListingCache stores serialized list pages. Keys are scoped: bumping a
// scope's generation makes every key built under the previous one unreachable.
type ListingCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Generation(ctx context.Context, scope string) (int64, error)
	Invalidate(ctx context.Context, scope string) error
}

// Key builds the cache key for one query under the scope's current generation.
func Key(scope string, generation int64, query string) string {
	return fmt.Sprintf("%s%d:%s", scopePrefix(scope), generation, query)
}

func scopePrefix(scope string) string {
	return "stockroom:list:" + scope + ":"
}

type NoopListingCache struct{}

func (NoopListingCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopListingCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopListingCache) Generation(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopListingCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryListingCache is a process-local ListingCache. Invalidate drops the
// scope's entries and Set sweeps expired ones, so the map only holds pages
// that can still be read.
type MemoryListingCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	generations map[string]int64
	now         func() time.Time
}

func NewMemoryListingCache() *MemoryListingCache {
	return &MemoryListingCache{
		entries:     make(map[string]memoryEntry),
		generations: make(map[string]int64),
		now:         time.Now,
	}
}

func (c *MemoryListingCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *MemoryListingCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = memoryEntry{payload: payload, expiresAt: now.Add(ttl)}
	return nil
}

func (c *MemoryListingCache) Generation(_ context.Context, scope string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[scope], nil
}

func (c *MemoryListingCache) Invalidate(_ context.Context, scope string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[scope]++
	prefix := scopePrefix(scope)
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}
