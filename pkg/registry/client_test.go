package registry_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/pget/internal/registrytest"
	"github.com/matzehuels/pget/pkg/cache"
	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/registry"
)

func newClient(t *testing.T, base string, mutate ...func(*registry.Options)) *registry.Client {
	t.Helper()
	opts := registry.Options{
		BaseURL: base,
		Timeout: time.Second,
		Retries: 3,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return registry.NewClient(opts)
}

func TestResolveVersions(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("left-pad", "1.0.0", nil)
	srv.Publish("left-pad", "1.3.0", map[string]string{"pad-core": "^2.0.0"})

	c := newClient(t, srv.URL())
	vm, err := c.ResolveVersions(context.Background(), "left-pad")
	require.NoError(t, err)

	assert.Equal(t, []string{"1.0.0", "1.3.0"}, vm.Versions())
	rec := vm["1.3.0"]
	assert.Equal(t, "left-pad", rec.Name)
	assert.Equal(t, "left-pad@1.3.0", rec.ID)
	assert.Equal(t, "^2.0.0", rec.Dependencies["pad-core"])
	assert.Equal(t, srv.TarballURL("left-pad", "1.3.0"), rec.Dist.Tarball)
	assert.NotEmpty(t, rec.Dist.Shasum)
	assert.True(t, rec.NodeSupported)
}

func TestResolveVersionsMemoises(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("a", "1.0.0", nil)
	c := newClient(t, srv.URL())

	for range 3 {
		_, err := c.ResolveVersions(context.Background(), "a")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, srv.Hits("a"))
}

func TestResolveVersionsScoped(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("@types/node", "20.1.0", nil)
	c := newClient(t, srv.URL())

	assert.Equal(t, srv.URL()+"@types%2Fnode", c.PackageURL("@types/node"))

	vm, err := c.ResolveVersions(context.Background(), "@types/node")
	require.NoError(t, err)
	assert.Contains(t, vm, "20.1.0")
}

func TestNotFoundIsNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*registrytest.Server)
	}{
		{"404", func(*registrytest.Server) {}},
		{"error field", func(s *registrytest.Server) { s.ErrorBody("ghost") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := registrytest.New(t)
			tt.setup(srv)
			c := newClient(t, srv.URL())

			_, err := c.ResolveVersions(context.Background(), "ghost")
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodePackageNotFound), "err = %v", err)
			assert.False(t, pkgerrors.Is(err, pkgerrors.ErrCodeRetriesExhausted))
			assert.Equal(t, 1, srv.Hits("ghost"))
		})
	}
}

func TestRetriesExhausted(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("flaky", "1.0.0", nil)
	srv.FailNext("flaky", 100)
	c := newClient(t, srv.URL())

	_, err := c.ResolveVersions(context.Background(), "flaky")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeRetriesExhausted, pkgerrors.GetCode(err))
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeNetwork))
	assert.False(t, pkgerrors.Is(err, pkgerrors.ErrCodePackageNotFound))
	assert.Equal(t, 4, srv.Hits("flaky"), "1 initial attempt + 3 retries")
}

func TestRetryRecovers(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("flaky", "1.0.0", nil)
	srv.FailNext("flaky", 2)
	c := newClient(t, srv.URL())

	vm, err := c.ResolveVersions(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Contains(t, vm, "1.0.0")
	assert.Equal(t, 3, srv.Hits("flaky"))
}

func TestSlowResponseIsTimeout(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("slow", "1.0.0", nil)
	srv.SetDelay(300 * time.Millisecond)
	c := newClient(t, srv.URL(), func(o *registry.Options) {
		o.Timeout = 50 * time.Millisecond
		o.Retries = 1
	})

	_, err := c.ResolveVersions(context.Background(), "slow")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeRetriesExhausted))
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeTimeout), "err = %v", err)
	assert.Equal(t, 2, srv.Hits("slow"))
}

func TestConnectionFailureConsumesRetries(t *testing.T) {
	dead := httptest.NewServer(nil)
	base := dead.URL + "/"
	dead.Close()

	c := newClient(t, base, func(o *registry.Options) { o.Retries = 2 })
	_, err := c.ResolveVersions(context.Background(), "anything")
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeRetriesExhausted))
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeNetwork))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestCancelledContext(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("a", "1.0.0", nil)
	c := newClient(t, srv.URL())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ResolveVersions(ctx, "a")
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}

func TestInvalidName(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1/")
	_, err := c.ResolveVersions(context.Background(), "../etc/passwd")
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeInvalidPackage))
}

func TestPersistentCacheSharedAcrossClients(t *testing.T) {
	srv := registrytest.New(t)
	srv.Publish("a", "1.0.0", map[string]string{"b": "^1.0.0"})
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)

	withCache := func(o *registry.Options) { o.Cache = fc }

	_, err = newClient(t, srv.URL(), withCache).ResolveVersions(context.Background(), "a")
	require.NoError(t, err)

	vm, err := newClient(t, srv.URL(), withCache).ResolveVersions(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "^1.0.0", vm["1.0.0"].Dependencies["b"])
	assert.Equal(t, 1, srv.Hits("a"))
}

func TestRetriesOption(t *testing.T) {
	tests := []struct {
		desc     string
		retries  int
		wantHits int
	}{
		{"zero value makes a single attempt", 0, 1},
		{"negative uses the default budget", -1, registry.DefaultRetries + 1},
		{"explicit budget", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			srv := registrytest.New(t)
			srv.Publish("flaky", "1.0.0", nil)
			srv.FailNext("flaky", 100)
			c := registry.NewClient(registry.Options{BaseURL: srv.URL(), Timeout: time.Second, Retries: tt.retries})

			_, err := c.ResolveVersions(context.Background(), "flaky")
			require.Error(t, err)
			assert.True(t, pkgerrors.Is(err, pkgerrors.ErrCodeRetriesExhausted))
			assert.Equal(t, tt.wantHits, srv.Hits("flaky"))
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := registry.NewClient(registry.Options{Retries: -1})
	assert.Equal(t, registry.DefaultBaseURL, c.BaseURL())

	c = registry.NewClient(registry.Options{BaseURL: "http://localhost:4873"})
	assert.Equal(t, "http://localhost:4873/", c.BaseURL())
}
