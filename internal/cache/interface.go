package cache

import "context"

// Interface defines the contract for snapshot caching so handlers can be
// tested with or without a cache.
type Interface[V any] interface {
	Store(ctx context.Context, key string, value V) error
	Get(ctx context.Context, key string) (V, error)
	Delete(ctx context.Context, key string)
	Size() int
	Clear()
	Close()
}
