package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matzehuels/pget/pkg/buildinfo"
	"github.com/matzehuels/pget/pkg/observability"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	out io.Writer
	err io.Writer

	// viper holds configuration for one invocation; flags are bound to it
	// in RootCommand.
	viper *viper.Viper

	dir         string
	verbose     bool
	stats       bool
	interactive bool

	metrics *prometheus.Registry
}

// New creates a CLI writing results to out and logs to errOut.
func New(out, errOut io.Writer, level log.Level) *CLI {
	c := &CLI{
		Logger: newLogger(errOut, level),
		out:    out,
		err:    errOut,
		viper:  viper.New(),
	}
	if f, ok := errOut.(*os.File); ok {
		c.interactive = isTerminal(f)
	}
	return c
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
// Running it without a subcommand installs the project's dependencies.
func (c *CLI) RootCommand() *cobra.Command {
	install := c.installCommand()

	root := &cobra.Command{
		Use:   "pget [command]",
		Short: "pget installs npm packages",
		Long: `pget resolves the dependencies declared in package.json against an npm
registry, records every decision in a lockfile and installs the result into
node_modules.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := LogInfo
			if c.verbose {
				level = LogDebug
			}
			c.SetLogLevel(level)
			if c.stats {
				if err := c.enableMetrics(); err != nil {
					return err
				}
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.metrics != nil {
				c.printMetrics()
			}
		},
		RunE: install.RunE,
	}
	root.SetOut(c.out)
	root.SetErr(c.err)
	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	pf.BoolVar(&c.stats, "stats", false, "print registry and resolution counters after the command")
	pf.StringVarP(&c.dir, "dir", "C", ".", "directory to start searching for package.json")
	pf.String("registry", "", "registry URL (default from config)")
	pf.String("mode", "", "sibling resolution mode: ordered or concurrent")
	pf.Int("concurrency", 0, "maximum in-flight registry lookups")
	pf.String("lockfile", "", "lockfile path relative to the project")
	for _, name := range []string{"registry", "mode", "concurrency", "lockfile"} {
		_ = c.viper.BindPFlag(name, pf.Lookup(name))
	}

	// The bare command behaves like install, so it takes install's flags.
	root.Flags().AddFlagSet(install.Flags())

	root.AddCommand(install)
	root.AddCommand(c.addCommand())
	root.AddCommand(c.listCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// Execute runs the command tree with args.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// enableMetrics registers Prometheus hooks on a registry private to this
// invocation.
func (c *CLI) enableMetrics() error {
	reg := prometheus.NewRegistry()
	hooks, err := observability.NewPrometheusHooks(reg)
	if err != nil {
		return err
	}
	observability.SetAll(hooks)
	c.metrics = reg
	return nil
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
