package domain

import "context"

// Backend is a raw object store. Keys are slash separated.
type Backend interface {
	Upload(ctx context.Context, localPath, key string) error
	// List returns every key under prefix, in no particular order.
	List(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, key, localPath string) error
	// Delete removes all keys in one batch where the store supports it.
	Delete(ctx context.Context, keys []string) error
	Close() error
}
