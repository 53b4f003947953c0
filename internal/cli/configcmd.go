package cli

import (
	"github.com/spf13/cobra"
)

// configCommand prints the configuration after defaults, pget.yaml,
// environment and flags are applied.
func (c *CLI) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			if used := c.viper.ConfigFileUsed(); used != "" {
				printKeyValue(c.err, "config file", used)
			}
			_, err = c.out.Write(data)
			return err
		},
	}
}
