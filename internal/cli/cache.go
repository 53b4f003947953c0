package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pget/internal/config"
	"github.com/matzehuels/pget/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry metadata cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// loadConfig reads configuration without requiring a package.json.
func (c *CLI) loadConfig() (*config.Config, error) {
	if err := config.Setup(c.viper, c.dir); err != nil {
		return nil, err
	}
	return config.Load(c.viper)
}

func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached registry document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := cache.Open(cache.Options{Dir: cfg.Cache.Dir, RedisURL: cfg.Cache.RedisURL})
			if err != nil {
				return err
			}
			defer store.Close()

			if err := cache.Clear(cmd.Context(), store); err != nil {
				if errors.Is(err, cache.ErrUnsupported) {
					printWarning(c.out, "The configured cache cannot be cleared")
					return nil
				}
				return err
			}

			printSuccess(c.out, "Cache cleared")
			printDetail(c.out, "%s", cacheLocation(cfg))
			return nil
		},
	}
}

func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the cache is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, cacheLocation(cfg))
			return nil
		},
	}
}

// cacheLocation names the backend cache.Open would select for cfg.
func cacheLocation(cfg *config.Config) string {
	if cfg.Cache.RedisURL != "" {
		return cfg.Cache.RedisURL
	}
	return cfg.Cache.Dir
}
