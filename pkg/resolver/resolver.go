// Package resolver walks a manifest's dependency graph and decides where every
// package is installed.
//
// Each dependency is looked up in the lock store first and the registry
// second, matched against its range, and then placed:
//
//   - The first version seen for a name is flattened to the top-level
//     node_modules.
//   - A later, different version of the same name is nested under the
//     package that asked for it.
//   - A version that cannot be placed anywhere on its path fails the whole
//     resolution with VERSION_CONFLICT.
//
// Placement is first-writer-wins, so the outcome depends on the order in
// which branches are visited. [ModeOrdered] places every sibling of a level
// in name order before walking any of their subtrees, and gives the same
// result on every run; [ModeConcurrent] resolves siblings
// in parallel and lets completion order decide.
//
// All state of one resolution lives in a [Run]; a [Resolver] can start any
// number of independent runs.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/lockfile"
	"github.com/matzehuels/pget/pkg/manifest"
	"github.com/matzehuels/pget/pkg/observability"
)

// DefaultConcurrency bounds in-flight registry lookups per run.
const DefaultConcurrency = 16

// Mode selects how sibling dependencies are evaluated.
type Mode int

const (
	// ModeOrdered fetches siblings in parallel, places all of them in
	// lexicographic name order, then descends into each in the same order.
	ModeOrdered Mode = iota

	// ModeConcurrent resolves siblings fully in parallel.
	ModeConcurrent
)

func (m Mode) String() string {
	switch m {
	case ModeOrdered:
		return "ordered"
	case ModeConcurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// ParseMode parses "ordered" or "concurrent". Empty means ordered.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ordered":
		return ModeOrdered, nil
	case "concurrent":
		return ModeConcurrent, nil
	default:
		return 0, pkgerrors.New(pkgerrors.ErrCodeInvalidInput, "unknown resolution mode %q (want ordered or concurrent)", s)
	}
}

// Options configures a [Resolver].
type Options struct {
	Mode Mode

	// Concurrency bounds in-flight registry lookups. Zero means
	// DefaultConcurrency.
	Concurrency int

	// Production skips devDependencies in ResolveManifest.
	Production bool

	Logger *log.Logger
}

// Resolver resolves dependency graphs against a [Fetcher] and an optional
// lock store.
type Resolver struct {
	fetcher Fetcher
	lock    *lockfile.Store
	opts    Options
}

// New creates a Resolver. lock may be nil, in which case every lookup goes
// to the fetcher and nothing is recorded.
func New(fetcher Fetcher, lock *lockfile.Store, opts Options) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Resolver{fetcher: fetcher, lock: lock, opts: opts}
}

// ResolveManifest resolves m's dependencies, then its devDependencies unless
// Options.Production is set. Both share one run, so a name flattened by a
// runtime dependency is seen by the dev pass.
//
// Entries of m with an empty range are rewritten to the version they
// resolved to.
func (r *Resolver) ResolveManifest(ctx context.Context, m *manifest.Manifest) (*Result, error) {
	run := r.NewRun()
	hooks := observability.Resolver()

	roots := len(m.Dependencies)
	if !r.opts.Production {
		roots += len(m.DevDependencies)
	}
	start := time.Now()
	hooks.OnResolveStart(ctx, run.ID(), roots)
	run.logger.Debug("resolving manifest", "dependencies", len(m.Dependencies),
		"devDependencies", len(m.DevDependencies), "mode", r.opts.Mode)

	err := run.resolveRoot(ctx, m.Dependencies)
	if err == nil && !r.opts.Production {
		err = run.resolveRoot(ctx, m.DevDependencies)
	}

	res := run.Result()
	hooks.OnResolveComplete(ctx, run.ID(), len(res.Flattened), len(res.Unsatisfied), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	run.logger.Debug("resolution complete", "flattened", len(res.Flattened),
		"nested", len(res.Unsatisfied), "took", time.Since(start).Round(time.Millisecond))
	return res, nil
}
