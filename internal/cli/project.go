package cli

import (
	"context"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pget/internal/config"
	"github.com/matzehuels/pget/pkg/cache"
	"github.com/matzehuels/pget/pkg/installer"
	"github.com/matzehuels/pget/pkg/lockfile"
	"github.com/matzehuels/pget/pkg/manifest"
	"github.com/matzehuels/pget/pkg/registry"
	"github.com/matzehuels/pget/pkg/resolver"
)

// project is everything a command needs to resolve one package.json.
type project struct {
	cfg      *config.Config
	logger   *log.Logger
	manifest *manifest.Manifest
	lock     *lockfile.Store
	cache    cache.Cache
	client   *registry.Client
}

// openOptions selects the optional parts of a project.
type openOptions struct {
	// useCache enables the persistent registry cache.
	useCache bool
}

// openProject finds package.json from the --dir flag, loads configuration
// relative to it and reads the lockfile.
func (c *CLI) openProject(ctx context.Context, opts openOptions) (*project, error) {
	logger := loggerFromContext(ctx)

	path, err := manifest.Find(c.dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}

	if err := config.Setup(c.viper, m.Dir()); err != nil {
		return nil, err
	}
	cfg, err := config.Load(c.viper)
	if err != nil {
		return nil, err
	}
	if used := c.viper.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config", "path", used)
	}

	lockPath := cfg.Lockfile
	if !filepath.IsAbs(lockPath) {
		lockPath = filepath.Join(m.Dir(), lockPath)
	}
	lock := lockfile.New(lockPath, logger)
	lock.Read(ctx)

	var store cache.Cache = cache.NewNullCache()
	if opts.useCache {
		store, err = cache.Open(cache.Options{Dir: cfg.Cache.Dir, RedisURL: cfg.Cache.RedisURL})
		if err != nil {
			return nil, err
		}
	}

	client := registry.NewClient(registry.Options{
		BaseURL:  cfg.Registry,
		Timeout:  cfg.Timeout(),
		Retries:  cfg.Retries,
		Cache:    store,
		CacheTTL: cfg.Cache.TTL,
		Logger:   logger,
	})

	logger.Debug("project opened", "manifest", path, "registry", client.BaseURL(), "lockfile", lockPath)
	return &project{
		cfg:      cfg,
		logger:   logger,
		manifest: m,
		lock:     lock,
		cache:    store,
		client:   client,
	}, nil
}

// Close releases the cache backend.
func (p *project) Close() error {
	return p.cache.Close()
}

// resolve runs the resolver over the manifest. The new lock generation is
// left in memory for the caller to persist.
func (p *project) resolve(ctx context.Context, production bool) (*resolver.Result, error) {
	mode, err := resolver.ParseMode(p.cfg.Mode)
	if err != nil {
		return nil, err
	}
	r := resolver.New(p.client, p.lock, resolver.Options{
		Mode:        mode,
		Concurrency: p.cfg.Concurrency,
		Production:  production,
		Logger:      p.logger,
	})
	return r.ResolveManifest(ctx, p.manifest)
}

// install unpacks res into the project's node_modules.
func (p *project) install(ctx context.Context, res *resolver.Result, onInstalled func(resolver.Install)) (installer.Summary, error) {
	in := installer.New(installer.Options{
		Root:        p.manifest.Dir(),
		Retries:     p.cfg.Retries,
		Logger:      p.logger,
		OnInstalled: onInstalled,
	})
	return in.Install(ctx, res)
}
