// Package flag provides feature flag stores. Every store treats a missing
// key as disabled.
package flag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/burhanettinuludag/clinicmesh/core"
)

// MemoryStore is an in-memory flag set.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]bool
}

var _ core.FlagStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with flags.
func NewMemoryStore(flags map[string]bool) *MemoryStore {
	s := &MemoryStore{flags: make(map[string]bool, len(flags))}
	for k, v := range flags {
		s.flags[k] = v
	}
	return s
}

// IsEnabled implements core.FlagStore.
func (s *MemoryStore) IsEnabled(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[key], nil
}

// Set stores a flag value.
func (s *MemoryStore) Set(key string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = enabled
}

// Delete removes a flag, which makes it disabled.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key)
}

// Keys returns the stored keys sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.flags))
	for k := range s.flags {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Default cache settings.
const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 30 * time.Second
)

// CachedStore caches lookups of another store for a TTL. Errors are never cached.
type CachedStore struct {
	delegate core.FlagStore
	cache    *expirable.LRU[string, bool]
}

var _ core.FlagStore = (*CachedStore)(nil)

// NewCachedStore wraps delegate. Non-positive size or ttl fall back to defaults.
func NewCachedStore(delegate core.FlagStore, size int, ttl time.Duration) *CachedStore {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{delegate: delegate, cache: expirable.NewLRU[string, bool](size, nil, ttl)}
}

// IsEnabled implements core.FlagStore.
func (c *CachedStore) IsEnabled(ctx context.Context, key string) (bool, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.delegate.IsEnabled(ctx, key)
	if err != nil {
		return false, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// Invalidate drops a cached key, or the whole cache when key is empty.
func (c *CachedStore) Invalidate(key string) {
	if key == "" {
		c.cache.Purge()
		return
	}
	c.cache.Remove(key)
}
