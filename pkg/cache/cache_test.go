package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}

	if err := c.Set(ctx, "registry:x:left-pad", []byte(`{"versions":{}}`), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, hit, err := c.Get(ctx, "registry:x:left-pad")
	if err != nil || !hit {
		t.Fatalf("Get = %v, %v; want hit", hit, err)
	}
	if string(data) != `{"versions":{}}` {
		t.Errorf("data = %q", data)
	}

	if err := c.Delete(ctx, "registry:x:left-pad"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "registry:x:left-pad"); hit {
		t.Error("entry still present after Delete")
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("Get after expiry = %v, %v; want miss", hit, err)
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestFileCacheZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	_ = c.Set(ctx, "k", []byte("v"), 0)

	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Error("zero TTL entry should be a hit")
	}
}

func TestFileCacheCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())

	path := c.path("k")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("Get corrupt = %v, %v; want miss", hit, err)
	}
}

func TestFileCacheClear(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cache")
	c, _ := NewFileCache(dir)
	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	if err := Clear(ctx, c); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("cache dir should still exist: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir has %d entries after Clear", len(entries))
	}
}

func TestOpen(t *testing.T) {
	c, err := Open(Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := c.(*NullCache); !ok {
		t.Errorf("Open(empty) = %T, want *NullCache", c)
	}

	c, err = Open(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := c.(*FileCache); !ok {
		t.Errorf("Open(dir) = %T, want *FileCache", c)
	}

	if _, err := Open(Options{RedisURL: "not-a-url"}); err == nil {
		t.Error("Open with bad redis url should fail")
	}
}

func TestRedisCacheFromURL(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/2", "test:")
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	defer c.Close()

	if c.prefix != "test:" {
		t.Errorf("prefix = %q", c.prefix)
	}
	if got := c.client.Options().DB; got != 2 {
		t.Errorf("DB = %d, want 2", got)
	}
}

func TestRegistryKey(t *testing.T) {
	a := RegistryKey("https://registry.npmjs.org/", "left-pad")
	b := RegistryKey("https://registry.npmjs.org", "left-pad")
	if a != b {
		t.Errorf("trailing slash should not change key: %q vs %q", a, b)
	}
	if a == RegistryKey("http://localhost:4873/", "left-pad") {
		t.Error("different registries should produce different keys")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}

	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}
