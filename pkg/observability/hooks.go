// Package observability provides hooks for metrics and tracing.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers register hooks at startup to
// receive events about resolution runs, cache lookups, and registry requests.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// Libraries never import a metrics backend; main wires one in. The bundled
// [PrometheusHooks] is what the pget CLI uses for --stats.
//
// # Usage
//
// Register hooks at application startup:
//
//	hooks, err := observability.NewPrometheusHooks(registry)
//	if err != nil {
//	    return err
//	}
//	observability.SetAll(hooks)
//
// Libraries call hooks to emit events:
//
//	observability.Resolver().OnFlatten(ctx, name, version)
//	observability.HTTP().OnRetry(ctx, name, attempt, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Resolver Hooks
// =============================================================================

// ResolverHooks receives events from dependency resolution.
type ResolverHooks interface {
	// OnResolveStart is called once per manifest resolution.
	OnResolveStart(ctx context.Context, runID string, roots int)
	OnResolveComplete(ctx context.Context, runID string, flattened, nested int, duration time.Duration, err error)

	// Placement decisions
	OnFlatten(ctx context.Context, name, version string)
	OnNest(ctx context.Context, name, version, parent string)
	OnConflict(ctx context.Context, name, version string)

	// OnCycleSkip records a child skipped because an ancestor already
	// satisfies it.
	OnCycleSkip(ctx context.Context, name, constraint string)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
// keyType is "memory", "persistent" or "lock".
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from registry HTTP operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)

	// OnRetry records that a failed attempt for pkg will be retried.
	OnRetry(ctx context.Context, pkg string, attempt int, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolverHooks is a no-op implementation of ResolverHooks.
type NoopResolverHooks struct{}

func (NoopResolverHooks) OnResolveStart(context.Context, string, int) {}
func (NoopResolverHooks) OnResolveComplete(context.Context, string, int, int, time.Duration, error) {
}
func (NoopResolverHooks) OnFlatten(context.Context, string, string)      {}
func (NoopResolverHooks) OnNest(context.Context, string, string, string) {}
func (NoopResolverHooks) OnConflict(context.Context, string, string)     {}
func (NoopResolverHooks) OnCycleSkip(context.Context, string, string)    {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}
func (NoopHTTPHooks) OnRetry(context.Context, string, int, error)                            {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	resolverHooks ResolverHooks = NoopResolverHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	hooksMu       sync.RWMutex
)

// SetResolverHooks registers custom resolver hooks.
// This should be called once at application startup before any resolution.
func SetResolverHooks(h ResolverHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		resolverHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// AllHooks is implemented by backends that handle every event category.
type AllHooks interface {
	ResolverHooks
	CacheHooks
	HTTPHooks
}

// SetAll registers h for every event category.
func SetAll(h AllHooks) {
	SetResolverHooks(h)
	SetCacheHooks(h)
	SetHTTPHooks(h)
}

// Resolver returns the registered resolver hooks.
func Resolver() ResolverHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return resolverHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	resolverHooks = NoopResolverHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
