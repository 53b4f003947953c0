package cli

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pget/pkg/manifest"
	"github.com/matzehuels/pget/pkg/resolver"
)

// installOptions holds the flags shared by install, add and the bare command.
type installOptions struct {
	production bool
	dev        bool
	cache      bool
	dryRun     bool
}

func (o *installOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&o.production, "production", false, "skip devDependencies")
	f.BoolVarP(&o.dev, "dev", "D", false, "save named packages to devDependencies")
	f.BoolVar(&o.cache, "cache", false, "use the persistent registry cache")
	f.BoolVar(&o.dryRun, "dry-run", false, "resolve and print the plan without writing anything")
}

// installCommand creates the install command. With package arguments it
// behaves like add.
func (c *CLI) installCommand() *cobra.Command {
	var opts installOptions
	cmd := &cobra.Command{
		Use:     "install [package[@range]...]",
		Aliases: []string{"i"},
		Short:   "Install the dependencies of package.json",
		Long: `Install resolves every dependency in package.json, using the lockfile
where it already records a matching version, writes the updated lockfile and
unpacks the packages into node_modules.

Package arguments are added to package.json first, as with "pget add".`,
		Example: `  pget install
  pget install --production
  pget install left-pad@^1.3.0 -D`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), args, opts)
		},
	}
	opts.register(cmd)
	return cmd
}

// runInstall adds specs to the manifest, resolves, writes the lockfile,
// installs and saves the manifest, in that order.
func (c *CLI) runInstall(ctx context.Context, specs []string, opts installOptions) error {
	logger := loggerFromContext(ctx)

	p, err := c.openProject(ctx, openOptions{useCache: opts.cache})
	if err != nil {
		return err
	}
	defer p.Close()

	for _, spec := range specs {
		name, rng, err := manifest.ParseSpec(spec)
		if err != nil {
			return err
		}
		if err := p.manifest.Add(name, rng, opts.dev); err != nil {
			return err
		}
		logger.Debug("added to manifest", "package", name, "range", rng, "dev", opts.dev)
	}

	prog := newProgress(logger)
	spin := c.startSpinner(ctx, "Resolving dependencies")
	res, err := p.resolve(ctx, opts.production)
	if err != nil {
		spin.Stop()
		return err
	}
	prog.done("resolved", "packages", len(res.Flattened)+len(res.Unsatisfied), "run", shortID(res.RunID))

	if opts.dryRun {
		spin.Stop()
		fmt.Fprintln(c.out, renderPlan(res.Plan()))
		printInfo(c.out, "Dry run: nothing was written")
		return nil
	}

	p.lock.Write(ctx)

	total := len(res.Flattened) + len(res.Unsatisfied)
	var done atomic.Int32
	spin.SetMessage(fmt.Sprintf("Installing 0/%d", total))
	sum, err := p.install(ctx, res, func(resolver.Install) {
		spin.SetMessage(fmt.Sprintf("Installing %d/%d", done.Add(1), total))
	})
	spin.Stop()
	if err != nil {
		return err
	}

	if err := p.manifest.Save(); err != nil {
		return err
	}

	printSuccess(c.out, "Installed %d packages in %s", sum.Packages, prog.elapsed())
	printSummary(c.out, len(res.Flattened), len(res.Unsatisfied), sum.Bytes)
	for _, n := range res.Unsatisfied {
		printDetail(c.out, "%s@%s %s node_modules/%s", n.Name, n.Version, iconArrow, resolver.Install{Name: n.Name, Parent: n.Parent}.Path())
	}
	return nil
}

// startSpinner returns a running spinner on an interactive terminal and an
// inert one otherwise.
func (c *CLI) startSpinner(ctx context.Context, msg string) spinner {
	if !c.interactive || c.verbose {
		return noSpinner{}
	}
	s := newSpinner(ctx, c.err, msg)
	s.Start()
	return s
}

type spinner interface {
	SetMessage(string)
	Stop()
}

type noSpinner struct{}

func (noSpinner) SetMessage(string) {}
func (noSpinner) Stop()             {}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
