package cli

import (
	"github.com/spf13/cobra"
)

// addCommand creates the add command.
func (c *CLI) addCommand() *cobra.Command {
	var opts installOptions
	cmd := &cobra.Command{
		Use:   "add <package[@range]>...",
		Short: "Add packages to package.json and install them",
		Long: `Add records each package in package.json, under devDependencies with -D,
then installs the whole project. A package given without a range is saved
with the exact version it resolves to.`,
		Example: `  pget add lodash
  pget add react@^18.2.0 react-dom@^18.2.0
  pget add -D typescript`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), args, opts)
		},
	}
	opts.register(cmd)
	return cmd
}
