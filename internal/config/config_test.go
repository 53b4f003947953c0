package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
)

// isolate points every lookup location at empty temp directories and clears
// the environment variables pget reads.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	for _, env := range []string{
		"REGISTRY", "RESOLVETIMEOUT", "RETRIES",
		"PGET_REGISTRY", "PGET_RESOLVETIMEOUT", "PGET_RETRIES", "PGET_TIMEOUT_MS",
		"PGET_LOCKFILE", "PGET_CONCURRENCY", "PGET_MODE",
		"PGET_CACHE_DIR", "PGET_CACHE_TTL", "PGET_REDIS_URL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
	return t.TempDir()
}

func load(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	v := viper.New()
	if err := Setup(v, dir); err != nil {
		return nil, err
	}
	return Load(v)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Registry != "https://registry.npmjs.org/" {
		t.Errorf("Registry = %q", cfg.Registry)
	}
	if cfg.TimeoutMs != 5000 || cfg.Timeout() != 5*time.Second {
		t.Errorf("TimeoutMs = %d", cfg.TimeoutMs)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %d, want 3", cfg.Retries)
	}
	if cfg.Lockfile != "pget-store.yaml" {
		t.Errorf("Lockfile = %q", cfg.Lockfile)
	}
	if cfg.Mode != "ordered" {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config invalid: %v", ValidationErrors(errs))
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := load(t, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry != "https://registry.npmjs.org/" || cfg.Retries != 3 || cfg.TimeoutMs != 5000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if want := filepath.Join(os.Getenv("XDG_CACHE_HOME"), "pget"); cfg.Cache.Dir != want {
		t.Errorf("Cache.Dir = %q, want %q", cfg.Cache.Dir, want)
	}
}

func TestLoadEnvironment(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(*Config) bool
	}{
		{"bare registry", map[string]string{"REGISTRY": "http://localhost:4873"},
			func(c *Config) bool { return c.Registry == "http://localhost:4873" }},
		{"prefixed registry wins", map[string]string{"REGISTRY": "http://a", "PGET_REGISTRY": "http://b"},
			func(c *Config) bool { return c.Registry == "http://b" }},
		{"bare timeout", map[string]string{"RESOLVETIMEOUT": "250"},
			func(c *Config) bool { return c.TimeoutMs == 250 }},
		{"bare retries", map[string]string{"RETRIES": "0"},
			func(c *Config) bool { return c.Retries == 0 }},
		{"mode", map[string]string{"PGET_MODE": "concurrent"},
			func(c *Config) bool { return c.Mode == "concurrent" }},
		{"nested key", map[string]string{"PGET_CACHE_TTL": "1h30m"},
			func(c *Config) bool { return c.Cache.TTL == 90*time.Minute }},
		{"redis url", map[string]string{"PGET_REDIS_URL": "redis://localhost:6379/0"},
			func(c *Config) bool { return c.Cache.RedisURL == "redis://localhost:6379/0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := load(t, dir)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("unexpected config %+v", cfg)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	content := "registry: http://mirror.local/\nretries: 1\ncache:\n  ttl: 10m\n"
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(t, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry != "http://mirror.local/" || cfg.Retries != 1 || cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}

	// Environment overrides the file.
	t.Setenv("RETRIES", "5")
	cfg, err = load(t, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retries != 5 {
		t.Errorf("Retries = %d, want 5", cfg.Retries)
	}
}

func TestLoadUserConfigDir(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ConfigDir(), FileName), []byte("concurrency: 4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(t, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
}

func TestLoadBrokenFile(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("retries: [unterminated\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := load(t, dir); !pkgerrors.Is(err, pkgerrors.ErrCodeInvalidInput) {
		t.Fatalf("Load error = %v, want INVALID_INPUT", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := isolate(t)
	t.Setenv("PGET_MODE", "random")
	t.Setenv("RETRIES", "-1")

	_, err := load(t, dir)
	if !pkgerrors.Is(err, pkgerrors.ErrCodeInvalidInput) {
		t.Fatalf("Load error = %v, want INVALID_INPUT", err)
	}
	if !strings.Contains(err.Error(), "mode") || !strings.Contains(err.Error(), "retries") {
		t.Errorf("error should name both fields: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"registry scheme", func(c *Config) { c.Registry = "ftp://x" }, "registry"},
		{"zero timeout", func(c *Config) { c.TimeoutMs = 0 }, "timeout_ms"},
		{"negative retries", func(c *Config) { c.Retries = -1 }, "retries"},
		{"empty lockfile", func(c *Config) { c.Lockfile = "" }, "lockfile"},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"unknown mode", func(c *Config) { c.Mode = "fast" }, "mode"},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }, "cache.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 || errs[0].Field != tt.field {
				t.Errorf("Validate() = %v, want one error for %s", errs, tt.field)
			}
		})
	}
}

func TestMarshal(t *testing.T) {
	cfg := Default()
	cfg.Cache.Dir = "/tmp/c"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(data)
	for _, want := range []string{"registry: https://registry.npmjs.org/", "timeout_ms: 5000", "ttl: 24h0m0s", "dir: /tmp/c"} {
		if !strings.Contains(out, want) {
			t.Errorf("Marshal() missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "redis_url") {
		t.Errorf("empty redis_url should be omitted:\n%s", out)
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := ConfigDir(), filepath.Join("/custom/config", "pget"); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
	t.Setenv("XDG_CACHE_HOME", "/custom/cache")
	if got, want := CacheDir(), filepath.Join("/custom/cache", "pget"); got != want {
		t.Errorf("CacheDir() = %q, want %q", got, want)
	}
}
