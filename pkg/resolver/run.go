package resolver

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/lockfile"
	"github.com/matzehuels/pget/pkg/observability"
	"github.com/matzehuels/pget/pkg/registry"
	"github.com/matzehuels/pget/pkg/semver"
)

// Resolution is the version a dependency resolved to and the ranges that
// version declares.
type Resolution struct {
	Name         string
	Version      string
	Dependencies map[string]string
}

// Run holds the state of one resolution: the flattened set, the nested
// installs and the subtrees already walked. It is safe for concurrent use.
type Run struct {
	id      string
	fetcher Fetcher
	lock    *lockfile.Store
	opts    Options
	logger  *log.Logger
	sem     *semaphore.Weighted

	mu        sync.Mutex
	flattened map[string]Flattened
	nested    []Nested
	seen      map[Nested]bool
	expanded  map[string]bool
}

// NewRun starts an empty run.
func (r *Resolver) NewRun() *Run {
	id := uuid.NewString()
	return &Run{
		id:        id,
		fetcher:   r.fetcher,
		lock:      r.lock,
		opts:      r.opts,
		logger:    r.opts.Logger.With("run", id[:8]),
		sem:       semaphore.NewWeighted(int64(r.opts.Concurrency)),
		flattened: make(map[string]Flattened),
		seen:      make(map[Nested]bool),
		expanded:  make(map[string]bool),
	}
}

// ID returns the run's unique identifier.
func (run *Run) ID() string { return run.id }

// GetDependency resolves name@constraint below stack, records the placement
// and lock entry, and recurses into the chosen version's dependencies.
//
// An empty constraint selects the highest published version.
func (run *Run) GetDependency(ctx context.Context, name, constraint string, stack Stack) (*Resolution, error) {
	vm, err := run.lookup(ctx, name, constraint)
	if err != nil {
		return nil, err
	}
	return run.resolve(ctx, name, constraint, vm, stack)
}

// lookup consults the lock store, then the fetcher.
func (run *Run) lookup(ctx context.Context, name, constraint string) (registry.VersionMap, error) {
	if run.lock != nil && constraint != "" {
		if vm, ok := run.lock.Get(name, constraint); ok {
			observability.Cache().OnCacheHit(ctx, "lock")
			return vm, nil
		}
		observability.Cache().OnCacheMiss(ctx, "lock")
	}

	if err := run.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer run.sem.Release(1)
	return run.fetcher.ResolveVersions(ctx, name)
}

func (run *Run) resolve(ctx context.Context, name, constraint string, vm registry.VersionMap, stack Stack) (*Resolution, error) {
	res, path, err := run.settle(ctx, name, constraint, vm, stack)
	if err != nil {
		return nil, err
	}
	if err := run.descend(ctx, res, path, stack); err != nil {
		return nil, err
	}
	return res, nil
}

// settle matches, places and locks name@constraint without walking its
// dependencies. It returns the install path chosen for it.
func (run *Run) settle(ctx context.Context, name, constraint string, vm registry.VersionMap, stack Stack) (*Resolution, string, error) {
	version, ok := match(vm, constraint)
	if !ok {
		return nil, "", pkgerrors.New(pkgerrors.ErrCodeUnresolvable,
			"cannot resolve %s@%s: none of %d published versions match%s",
			name, displayRange(constraint), len(vm), requiredBy(stack))
	}
	rec := vm[version]
	if rec.Deprecated != "" {
		run.logger.Warn("deprecated", "package", name+"@"+version, "notice", string(rec.Deprecated))
	}

	path, err := run.place(ctx, name, version, rec.Dist, stack)
	if err != nil {
		return nil, "", err
	}

	if run.lock != nil {
		key := constraint
		if key == "" {
			key = version
		}
		run.lock.CreateOrUpdate(name, key, rec)
	}
	return &Resolution{Name: name, Version: version, Dependencies: rec.Dependencies}, path, nil
}

// descend resolves the dependencies of res, installed at path, one level
// below stack. Subtrees already walked for the same path and version are
// skipped.
func (run *Run) descend(ctx context.Context, res *Resolution, path string, stack Stack) error {
	if len(res.Dependencies) == 0 || !run.expand(path, res.Version) {
		return nil
	}

	next := stack.Push(Frame{Name: res.Name, Version: res.Version, Dependencies: res.Dependencies, Path: path})
	children := make(map[string]string, len(res.Dependencies))
	for dep, rng := range res.Dependencies {
		if next.Satisfies(dep, rng) {
			run.logger.Debug("skipping circular dependency", "package", dep, "range", rng, "path", next.String())
			observability.Resolver().OnCycleSkip(ctx, dep, rng)
			continue
		}
		children[dep] = rng
	}
	_, err := run.resolveAll(ctx, children, next)
	return err
}

// resolveAll resolves every entry of deps below stack.
func (run *Run) resolveAll(ctx context.Context, deps map[string]string, stack Stack) (map[string]*Resolution, error) {
	names := slices.Sorted(maps.Keys(deps))
	out := make(map[string]*Resolution, len(names))

	if run.opts.Mode == ModeConcurrent {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, name := range names {
			g.Go(func() error {
				res, err := run.GetDependency(gctx, name, deps[name], stack)
				if err != nil {
					return err
				}
				mu.Lock()
				out[name] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	}

	vms := make([]registry.VersionMap, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			vm, err := run.lookup(gctx, name, deps[name])
			vms[i] = vm
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Every sibling is placed before any subtree is walked, so a package
	// declared at this level claims its slot ahead of transitive packages
	// of the same name.
	paths := make([]string, len(names))
	for i, name := range names {
		res, path, err := run.settle(ctx, name, deps[name], vms[i], stack)
		if err != nil {
			return nil, err
		}
		out[name] = res
		paths[i] = path
	}
	for i, name := range names {
		if err := run.descend(ctx, out[name], paths[i], stack); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// resolveRoot resolves a manifest dependency map and writes resolved
// versions back over empty ranges.
func (run *Run) resolveRoot(ctx context.Context, deps map[string]string) error {
	if len(deps) == 0 {
		return nil
	}
	resolved, err := run.resolveAll(ctx, deps, nil)
	if err != nil {
		return err
	}
	for name, rng := range deps {
		if rng == "" && resolved[name] != nil {
			deps[name] = resolved[name].Version
		}
	}
	return nil
}

// place decides where name@version is installed and returns its install
// path relative to node_modules.
func (run *Run) place(ctx context.Context, name, version string, dist registry.Dist, stack Stack) (string, error) {
	hooks := observability.Resolver()

	run.mu.Lock()
	defer run.mu.Unlock()

	flat, ok := run.flattened[name]
	switch {
	case !ok:
		run.flattened[name] = Flattened{
			Version:   version,
			URL:       dist.Tarball,
			Shasum:    dist.Shasum,
			Integrity: dist.Integrity,
		}
		run.logger.Debug("flattened", "package", name, "version", version)
		hooks.OnFlatten(ctx, name, version)
		return name, nil

	case flat.Version == version:
		return name, nil

	case semver.Satisfies(flat.Version, version):
		parent, ok := nestingParent(stack, name, version)
		if !ok {
			hooks.OnConflict(ctx, name, version)
			return "", conflict(name, version, flat.Version, stack)
		}
		return run.nest(ctx, name, version, parent, dist), nil

	default:
		top, ok := stack.Top()
		if !ok {
			hooks.OnConflict(ctx, name, version)
			return "", conflict(name, version, flat.Version, stack)
		}
		return run.nest(ctx, name, version, top.Path, dist), nil
	}
}

// nest records a nested install. Callers hold run.mu.
func (run *Run) nest(ctx context.Context, name, version, parent string, dist registry.Dist) string {
	n := Nested{
		Name:      name,
		Version:   version,
		Parent:    parent,
		URL:       dist.Tarball,
		Shasum:    dist.Shasum,
		Integrity: dist.Integrity,
	}
	if !run.seen[n] {
		run.seen[n] = true
		run.nested = append(run.nested, n)
		run.logger.Debug("nested", "package", name, "version", version, "parent", parent)
		observability.Resolver().OnNest(ctx, name, version, parent)
	}
	return installPath(parent, name)
}

// expand reports whether the subtree of version installed at path still has
// to be walked, and marks it walked.
func (run *Run) expand(path, version string) bool {
	key := path + "@" + version
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.expanded[key] {
		return false
	}
	run.expanded[key] = true
	return true
}

// Result snapshots the run's placements.
func (run *Run) Result() *Result {
	run.mu.Lock()
	defer run.mu.Unlock()
	return &Result{
		RunID:       run.id,
		Flattened:   maps.Clone(run.flattened),
		Unsatisfied: slices.Clone(run.nested),
	}
}

// match picks the highest version satisfying constraint, or the highest
// version overall for an empty constraint.
func match(vm registry.VersionMap, constraint string) (string, bool) {
	versions := vm.Versions()
	if constraint == "" {
		return semver.Highest(versions)
	}
	return semver.MaxSatisfying(versions, constraint)
}

func conflict(name, version, flattened string, stack Stack) error {
	return pkgerrors.New(pkgerrors.ErrCodeVersionConflict,
		"version conflict: %s@%s is required%s, but %s@%s already occupies the top level and no parent on the path accepts it",
		name, version, requiredBy(stack), name, flattened)
}

func requiredBy(stack Stack) string {
	if len(stack) == 0 {
		return " by the project"
	}
	return " by " + stack.String()
}

func displayRange(constraint string) string {
	if constraint == "" {
		return "latest"
	}
	return constraint
}
