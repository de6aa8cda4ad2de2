package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrEmptyKey is returned when a key is empty
	ErrEmptyKey = errors.New("key cannot be empty")
	// ErrMiss is returned when a key is absent or expired
	ErrMiss = errors.New("cache miss")
)

// cleanupInterval is how often expired entries are swept
const cleanupInterval = time.Minute

// SnapshotCache holds short-lived snapshots (e.g. the serialized session a
// polling client fetches) with TTL-based expiration.
type SnapshotCache[V any] struct {
	entries map[string]*Entry[V]
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{} // Signal to stop cleanup goroutine
	once    sync.Once
}

// Entry is a cached value with expiration metadata
type Entry[V any] struct {
	Value     V
	CachedAt  time.Time
	ExpiresAt time.Time
}

var _ Interface[string] = (*SnapshotCache[string])(nil)

// NewSnapshotCache creates a cache with the specified TTL and starts a
// background goroutine that removes expired entries.
func NewSnapshotCache[V any](ttl time.Duration) *SnapshotCache[V] {
	c := &SnapshotCache[V]{
		entries: make(map[string]*Entry[V]),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// TTL returns the configured time to live.
func (c *SnapshotCache[V]) TTL() time.Duration {
	return c.ttl
}

// Store caches value under key with the configured TTL
func (c *SnapshotCache[V]) Store(ctx context.Context, key string, value V) error {
	if key == "" {
		return ErrEmptyKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = &Entry[V]{
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	return nil
}

// Get returns the cached value, or ErrMiss if absent or expired
func (c *SnapshotCache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	if key == "" {
		return zero, ErrEmptyKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMiss, key)
	}
	if c.now().After(entry.ExpiresAt) {
		return zero, fmt.Errorf("%w: %s expired", ErrMiss, key)
	}
	return entry.Value, nil
}

// Delete removes a cached entry
func (c *SnapshotCache[V]) Delete(ctx context.Context, key string) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the current number of entries
func (c *SnapshotCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries
func (c *SnapshotCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry[V])
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *SnapshotCache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *SnapshotCache[V]) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

// cleanup removes expired entries
func (c *SnapshotCache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}
}
