package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// listCommand creates the list command.
func (c *CLI) listCommand() *cobra.Command {
	var (
		production bool
		useCache   bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Resolve dependencies and show where each package would be installed",
		Long: `List resolves package.json exactly like install but only prints the result:
every top-level package, then every package nested below another because a
different version of its name already occupies the top level.

The lockfile is not rewritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := c.openProject(ctx, openOptions{useCache: useCache})
			if err != nil {
				return err
			}
			defer p.Close()

			res, err := p.resolve(ctx, production)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			name := p.manifest.Name
			if name == "" {
				name = p.manifest.Dir()
			}
			fmt.Fprintln(c.out, StyleTitle.Render(name))
			fmt.Fprintln(c.out, renderPlan(res.Plan()))
			printSummary(c.out, len(res.Flattened), len(res.Unsatisfied), 0)
			return nil
		},
	}
	cmd.Flags().BoolVar(&production, "production", false, "skip devDependencies")
	cmd.Flags().BoolVar(&useCache, "cache", false, "use the persistent registry cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the resolution as JSON")
	return cmd
}
