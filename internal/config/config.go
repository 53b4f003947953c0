// Package config loads pget settings from defaults, an optional pget.yaml,
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
)

// FileName is the base name of the optional config file.
const FileName = "pget.yaml"

// Config holds all settings for a pget invocation.
type Config struct {
	// Registry is the root URL of the npm-compatible registry.
	Registry string `mapstructure:"registry" yaml:"registry"`

	// TimeoutMs bounds a single registry request, in milliseconds.
	TimeoutMs int `mapstructure:"timeout_ms" yaml:"timeout_ms"`

	// Retries is the number of extra registry attempts after the first.
	Retries int `mapstructure:"retries" yaml:"retries"`

	// Lockfile is the lock store path, relative to the project directory.
	Lockfile string `mapstructure:"lockfile" yaml:"lockfile"`

	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	Mode        string `mapstructure:"mode" yaml:"mode"`

	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig controls the persistent registry metadata cache.
type CacheConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl"`
	RedisURL string        `mapstructure:"redis_url" yaml:"redis_url,omitempty"`
}

// Timeout returns TimeoutMs as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Registry:    "https://registry.npmjs.org/",
		TimeoutMs:   5000,
		Retries:     3,
		Lockfile:    "pget-store.yaml",
		Concurrency: 16,
		Mode:        "ordered",
		Cache: CacheConfig{
			Dir: CacheDir(),
			TTL: 24 * time.Hour,
		},
	}
}

// SetDefaults registers every default on v so that environment variables
// and config file values are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("registry", d.Registry)
	v.SetDefault("timeout_ms", d.TimeoutMs)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("lockfile", d.Lockfile)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
}

// Setup prepares v for Load: defaults, PGET_* environment variables plus
// the bare REGISTRY, RESOLVETIMEOUT and RETRIES names, and pget.yaml from
// projectDir or, failing that, the user config directory. A missing file is
// not an error.
func Setup(v *viper.Viper, projectDir string) error {
	SetDefaults(v)

	v.SetEnvPrefix("PGET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindings := map[string][]string{
		"registry":        {"PGET_REGISTRY", "REGISTRY"},
		"timeout_ms":      {"PGET_RESOLVETIMEOUT", "RESOLVETIMEOUT"},
		"retries":         {"PGET_RETRIES", "RETRIES"},
		"cache.redis_url": {"PGET_REDIS_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}

	path := findFile(projectDir, ConfigDir())
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeInvalidInput, err, "read %s", path)
	}
	return nil
}

// findFile returns the first existing pget.yaml among dirs.
func findFile(dirs ...string) string {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// Load reads the configuration from v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidInput, err, "decode configuration")
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "invalid configuration: %s", ValidationErrors(errs).Error())
	}
	return &cfg, nil
}

// Marshal renders the configuration as YAML, in the same shape pget.yaml
// is read in.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ConfigDir returns the per-user config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pget")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pget"
	}
	return filepath.Join(home, ".config", "pget")
}

// CacheDir returns the default registry cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pget")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "pget-cache")
	}
	return filepath.Join(home, ".cache", "pget")
}

// ValidModes lists the accepted values of mode.
func ValidModes() []string {
	return []string{"ordered", "concurrent"}
}

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks c and returns all problems found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	if err := pkgerrors.ValidateURL(c.Registry); err != nil {
		errs = append(errs, ValidationError{"registry", c.Registry, "must be an http or https URL"})
	}
	if c.TimeoutMs <= 0 {
		errs = append(errs, ValidationError{"timeout_ms", c.TimeoutMs, "must be positive"})
	}
	if c.Retries < 0 {
		errs = append(errs, ValidationError{"retries", c.Retries, "must not be negative"})
	}
	if c.Lockfile == "" {
		errs = append(errs, ValidationError{"lockfile", c.Lockfile, "must not be empty"})
	}
	if c.Concurrency <= 0 {
		errs = append(errs, ValidationError{"concurrency", c.Concurrency, "must be positive"})
	}
	if !slices.Contains(ValidModes(), c.Mode) {
		errs = append(errs, ValidationError{"mode", c.Mode, "must be one of " + strings.Join(ValidModes(), ", ")})
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, ValidationError{"cache.ttl", c.Cache.TTL, "must not be negative"})
	}
	return errs
}
