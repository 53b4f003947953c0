// Package installer downloads and unpacks resolved packages into a project's
// node_modules tree.
//
// Installation follows the plan of a [resolver.Result]: flattened packages
// land in <root>/node_modules/<name>, nested ones in
// <root>/node_modules/<parent>/node_modules/<name>. Packages are installed
// one depth level at a time so a parent directory is in place before anything
// is unpacked beneath it.
package installer

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pget/pkg/buildinfo"
	pkgerrors "github.com/matzehuels/pget/pkg/errors"
	"github.com/matzehuels/pget/pkg/httputil"
	"github.com/matzehuels/pget/pkg/resolver"
)

// DefaultConcurrency bounds parallel downloads.
const DefaultConcurrency = 8

// maxTarballSize caps a single download.
const maxTarballSize = 512 << 20

// Options configures an [Installer].
type Options struct {
	// Root is the project directory that holds node_modules.
	Root string

	Concurrency int

	// Retries is the number of extra download attempts. Negative means none.
	Retries int
	Backoff time.Duration

	HTTPClient *http.Client
	Logger     *log.Logger

	// OnInstalled, if set, is called after each package is unpacked.
	// It may be called from several goroutines at once.
	OnInstalled func(step resolver.Install)
}

// Summary reports what an installation did.
type Summary struct {
	Packages int
	Bytes    int64
}

// Installer places packages on disk. It is safe for concurrent use.
type Installer struct {
	root        string
	concurrency int
	retries     int
	backoff     time.Duration
	http        *http.Client
	logger      *log.Logger
	onInstalled func(resolver.Install)
}

// New creates an Installer from opts.
func New(opts Options) *Installer {
	in := &Installer{
		root:        opts.Root,
		concurrency: opts.Concurrency,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		http:        opts.HTTPClient,
		logger:      opts.Logger,
		onInstalled: opts.OnInstalled,
	}
	if in.root == "" {
		in.root = "."
	}
	if in.concurrency <= 0 {
		in.concurrency = DefaultConcurrency
	}
	if in.retries < 0 {
		in.retries = 0
	}
	if in.http == nil {
		in.http = &http.Client{Timeout: 2 * time.Minute}
	}
	if in.logger == nil {
		in.logger = log.Default()
	}
	return in
}

// Target returns the directory step is unpacked into.
func (in *Installer) Target(step resolver.Install) string {
	return filepath.Join(in.root, "node_modules", filepath.FromSlash(step.Path()))
}

// Install unpacks every package of res. The first failure cancels the
// remaining downloads.
func (in *Installer) Install(ctx context.Context, res *resolver.Result) (Summary, error) {
	var (
		installed atomic.Int64
		bytes     atomic.Int64
	)
	for _, level := range levels(res.Plan()) {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(in.concurrency)
		for _, step := range level {
			g.Go(func() error {
				n, err := in.InstallOne(gctx, step)
				if err != nil {
					return err
				}
				installed.Add(1)
				bytes.Add(n)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Summary{}, err
		}
	}
	return Summary{Packages: int(installed.Load()), Bytes: bytes.Load()}, nil
}

// InstallOne downloads, verifies and unpacks a single package, replacing
// whatever was installed at its target before. It returns the archive size.
func (in *Installer) InstallOne(ctx context.Context, step resolver.Install) (int64, error) {
	if err := pkgerrors.ValidatePackageName(step.Name); err != nil {
		return 0, err
	}
	if err := pkgerrors.ValidatePath(step.Path()); err != nil {
		return 0, err
	}
	if step.URL == "" {
		return 0, pkgerrors.New(pkgerrors.ErrCodeInvalidPackage, "%s@%s has no tarball", step.Name, step.Version)
	}

	data, err := in.download(ctx, step)
	if err != nil {
		return 0, err
	}
	if err := verify(step, data); err != nil {
		return 0, err
	}

	target := in.Target(step)
	if err := os.RemoveAll(target); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPath, err, "clear %s", target)
	}
	if err := extract(data, target); err != nil {
		return 0, err
	}

	in.logger.Debug("installed", "package", step.Name, "version", step.Version, "path", step.Path())
	if in.onInstalled != nil {
		in.onInstalled(step)
	}
	return int64(len(data)), nil
}

func (in *Installer) download(ctx context.Context, step resolver.Install) ([]byte, error) {
	attempts := in.retries + 1
	policy := httputil.Policy{
		Attempts: attempts,
		Delay:    in.backoff,
		OnRetry: func(attempt int, err error) {
			in.logger.Debug("retrying download", "package", step.Name, "attempt", attempt, "err", err)
		},
	}

	var data []byte
	err := httputil.Do(ctx, policy, func(int) error {
		var err error
		data, err = in.fetch(ctx, step)
		return err
	})
	switch {
	case err == nil:
		return data, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case httputil.IsRetryable(err):
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeRetriesExhausted, err,
			"download of %s@%s failed after %d attempts", step.Name, step.Version, attempts)
	default:
		return nil, err
	}
}

func (in *Installer) fetch(ctx context.Context, step resolver.Install) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, step.URL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidInput, err, "invalid tarball url %q", step.URL)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := in.http.Do(req)
	if err != nil {
		return nil, httputil.Retryable(pkgerrors.Wrap(pkgerrors.ErrCodeNetwork, err, "download %s", step.URL))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.ErrCodePackageNotFound, "tarball for %s@%s not found", step.Name, step.Version)
	case resp.StatusCode != http.StatusOK:
		return nil, httputil.Retryable(pkgerrors.New(pkgerrors.ErrCodeNetwork,
			"tarball server returned status %d for %s@%s", resp.StatusCode, step.Name, step.Version))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTarballSize+1))
	if err != nil {
		return nil, httputil.Retryable(pkgerrors.Wrap(pkgerrors.ErrCodeNetwork, err, "read tarball of %s", step.Name))
	}
	if len(data) > maxTarballSize {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidPackage, "tarball of %s exceeds %d bytes", step.Name, maxTarballSize)
	}
	return data, nil
}

// levels groups an ordered plan by depth.
func levels(plan []resolver.Install) [][]resolver.Install {
	var out [][]resolver.Install
	for _, step := range plan {
		d := step.Depth()
		for len(out) <= d {
			out = append(out, nil)
		}
		out[d] = append(out[d], step)
	}
	return out
}
