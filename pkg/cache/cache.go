// Package cache provides a byte-oriented second-level cache for registry
// documents.
//
// The registry client keeps decoded documents in memory for the lifetime of a
// run. A [Cache] from this package sits behind that map and survives across
// runs: [FileCache] stores entries under the user cache directory,
// [RedisCache] shares them between machines, and [NullCache] disables the
// layer entirely.
//
// Entries are opaque bytes with a per-entry TTL. A zero TTL never expires.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Cache stores opaque payloads keyed by string.
//
// Get reports a miss with ok=false and a nil error. Expired or corrupt entries
// are misses, not errors.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by caches that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// ErrUnsupported is returned by [Clear] for caches that cannot be cleared.
var ErrUnsupported = errors.New("cache does not support clearing")

// Clear empties c if it implements [Clearer].
func Clear(ctx context.Context, c Cache) error {
	if cl, ok := c.(Clearer); ok {
		return cl.Clear(ctx)
	}
	return ErrUnsupported
}

// Options selects and configures a cache backend for [Open].
type Options struct {
	// Dir is the directory for a [FileCache].
	Dir string

	// RedisURL, when set, selects a [RedisCache] and takes precedence over Dir.
	RedisURL string

	// Prefix namespaces Redis keys. Defaults to "pget:".
	Prefix string
}

// Open returns the backend described by opts: Redis if RedisURL is set, a
// file cache if Dir is set, otherwise a [NullCache].
func Open(opts Options) (Cache, error) {
	switch {
	case opts.RedisURL != "":
		prefix := opts.Prefix
		if prefix == "" {
			prefix = "pget:"
		}
		c, err := NewRedisCache(opts.RedisURL, prefix)
		if err != nil {
			return nil, err
		}
		return c, nil
	case opts.Dir != "":
		c, err := NewFileCache(opts.Dir)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return NewNullCache(), nil
	}
}

// RegistryKey builds the cache key for a package document fetched from a
// registry. Keys from different registries never collide.
func RegistryKey(registryURL, name string) string {
	return "registry:" + strings.TrimSuffix(registryURL, "/") + ":" + name
}
