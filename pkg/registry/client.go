// Package registry fetches package metadata from an npm-compatible registry.
//
// [Client.ResolveVersions] returns every published version of a package as a
// [VersionMap]. Results are memoised for the lifetime of the client, and may
// additionally be stored in a persistent [cache.Cache] shared between runs.
//
// Each network attempt races the request against a timer. Transient failures
// (transport errors, timeouts, unexpected statuses, undecodable bodies) are
// retried up to the configured budget; a package the registry reports as
// missing fails immediately with PACKAGE_NOT_FOUND.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pget/pkg/buildinfo"
	"github.com/matzehuels/pget/pkg/cache"
	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/httputil"
	"github.com/matzehuels/pget/pkg/observability"
)

// Defaults used when [Options] leaves a field zero.
const (
	DefaultBaseURL  = "https://registry.npmjs.org/"
	DefaultTimeout  = 5 * time.Second
	DefaultRetries  = 3
	DefaultBackoff  = 200 * time.Millisecond
	DefaultCacheTTL = 24 * time.Hour
)

// Options configures a [Client].
type Options struct {
	// BaseURL is the registry root. Package names are appended directly, so a
	// trailing slash is added if missing.
	BaseURL string

	// Timeout bounds a single attempt. Zero means DefaultTimeout; a negative
	// value disables the timer.
	Timeout time.Duration

	// Retries is the number of extra attempts after the first one. The zero
	// value makes a single attempt with no retries; pass a negative value to
	// get DefaultRetries.
	Retries int

	// Backoff is the delay before the first retry, doubling after each.
	Backoff time.Duration

	// Cache is an optional persistent second-level cache.
	Cache    cache.Cache
	CacheTTL time.Duration

	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client resolves package names to their published versions.
// It is safe for concurrent use.
type Client struct {
	baseURL  string
	timeout  time.Duration
	retries  int
	backoff  time.Duration
	cache    cache.Cache
	cacheTTL time.Duration
	http     *http.Client
	logger   *log.Logger

	// Concurrent first requests for the same uncached name may both reach the
	// network; the later write wins and both callers get equivalent maps.
	mu   sync.Mutex
	memo map[string]VersionMap
}

// NewClient creates a Client from opts, filling in defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:  opts.BaseURL,
		timeout:  opts.Timeout,
		retries:  opts.Retries,
		backoff:  opts.Backoff,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		http:     opts.HTTPClient,
		logger:   opts.Logger,
		memo:     make(map[string]VersionMap),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(c.baseURL, "/") {
		c.baseURL += "/"
	}
	if c.timeout == 0 {
		c.timeout = DefaultTimeout
	}
	if c.retries < 0 {
		c.retries = DefaultRetries
	}
	if c.cacheTTL == 0 {
		c.cacheTTL = DefaultCacheTTL
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// BaseURL returns the normalised registry root.
func (c *Client) BaseURL() string { return c.baseURL }

// PackageURL returns the document URL for name. The slash of a scoped name
// is escaped, as the npm registry expects.
func (c *Client) PackageURL(name string) string {
	if scope, rest, ok := strings.Cut(name, "/"); ok && strings.HasPrefix(scope, "@") {
		return c.baseURL + url.PathEscape(scope) + "%2F" + url.PathEscape(rest)
	}
	return c.baseURL + url.PathEscape(name)
}

// ResolveVersions returns every published version of name.
//
// Errors carry one of the codes INVALID_PACKAGE, PACKAGE_NOT_FOUND or
// RETRIES_EXHAUSTED; the latter wraps the last NETWORK_ERROR or TIMEOUT.
// Cancellation of ctx is returned unwrapped.
func (c *Client) ResolveVersions(ctx context.Context, name string) (VersionMap, error) {
	if err := pkgerrors.ValidatePackageName(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	vm, ok := c.memo[name]
	c.mu.Unlock()
	if ok {
		observability.Cache().OnCacheHit(ctx, "memory")
		return vm, nil
	}
	observability.Cache().OnCacheMiss(ctx, "memory")

	if vm, ok := c.fromCache(ctx, name); ok {
		c.remember(name, vm)
		return vm, nil
	}

	vm, err := c.fetchWithRetry(ctx, name)
	if err != nil {
		return nil, err
	}

	c.remember(name, vm)
	c.toCache(ctx, name, vm)
	return vm, nil
}

func (c *Client) remember(name string, vm VersionMap) {
	c.mu.Lock()
	c.memo[name] = vm
	c.mu.Unlock()
}

func (c *Client) fetchWithRetry(ctx context.Context, name string) (VersionMap, error) {
	attempts := c.retries + 1
	policy := httputil.Policy{
		Attempts: attempts,
		Delay:    c.backoff,
		OnRetry: func(attempt int, err error) {
			c.logger.Debug("retrying registry request", "package", name, "attempt", attempt, "err", err)
			observability.HTTP().OnRetry(ctx, name, attempt, err)
		},
	}

	var vm VersionMap
	err := httputil.Do(ctx, policy, func(int) error {
		var got VersionMap
		err := httputil.Attempt(ctx, c.timeout, func(actx context.Context) error {
			var err error
			got, err = c.fetch(actx, name)
			return err
		})
		if errors.Is(err, httputil.ErrTimeout) {
			return httputil.Retryable(pkgerrors.New(pkgerrors.ErrCodeTimeout,
				"request for %s exceeded %s", name, c.timeout))
		}
		if err == nil {
			vm = got
		}
		return err
	})

	switch {
	case err == nil:
		return vm, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case httputil.IsRetryable(err):
		var re *httputil.RetryableError
		errors.As(err, &re)
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeRetriesExhausted, re.Err,
			"giving up on %s after %d attempts", name, attempts)
	default:
		return nil, err
	}
}

// fetch performs one GET of the package document.
func (c *Client) fetch(ctx context.Context, name string) (VersionMap, error) {
	target := c.PackageURL(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidInput, err, "invalid registry url %q", target)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	c.logger.Debug("fetching package document", "package", name, "url", target)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, httputil.Retryable(pkgerrors.Wrap(pkgerrors.ErrCodeNetwork, err, "request for %s failed", name))
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.ErrCodePackageNotFound, "package %s not found", name)
	case resp.StatusCode != http.StatusOK:
		return nil, httputil.Retryable(pkgerrors.New(pkgerrors.ErrCodeNetwork,
			"registry returned status %d for %s", resp.StatusCode, name))
	}

	var doc Packument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, httputil.Retryable(pkgerrors.Wrap(pkgerrors.ErrCodeNetwork, err, "decode document for %s", name))
	}
	if doc.NotFound() {
		return nil, pkgerrors.New(pkgerrors.ErrCodePackageNotFound, "package %s not found: %s", name, doc.ErrorMessage())
	}
	if doc.Versions == nil {
		doc.Versions = VersionMap{}
	}
	return doc.Versions, nil
}

func (c *Client) cacheKey(name string) string {
	return cache.RegistryKey(c.baseURL, name)
}

func (c *Client) fromCache(ctx context.Context, name string) (VersionMap, bool) {
	if c.cache == nil {
		return nil, false
	}
	data, ok, err := c.cache.Get(ctx, c.cacheKey(name))
	if err != nil {
		c.logger.Debug("cache read failed", "package", name, "err", err)
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, "persistent")
		return nil, false
	}
	var vm VersionMap
	if err := json.Unmarshal(data, &vm); err != nil {
		observability.Cache().OnCacheMiss(ctx, "persistent")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "persistent")
	return vm, true
}

func (c *Client) toCache(ctx context.Context, name string, vm VersionMap) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(vm)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(name), data, c.cacheTTL); err != nil {
		c.logger.Debug("cache write failed", "package", name, "err", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "persistent", len(data))
}
