package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cristinecula/knowledge-mcp/internal/config"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "kbd",
		Short:         "knowledge-base agent tool server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.String("index-path", "", "path to the local index database")
	flags.String("routing-path", "", "path to the multi-repo routing config (JSON)")
	flags.String("sync-repo-path", "", "path to a single sync repo (mutually exclusive with routing-path)")
	flags.Int("sync-interval-seconds", 0, "periodic sync interval in seconds (0 disables)")
	flags.String("embedding-provider", "", `embedding provider: "none" or "anthropic"`)
	flags.String("log-path", "", "log file path (empty logs to stderr)")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	for _, name := range []string{
		"index-path", "routing-path", "sync-repo-path", "sync-interval-seconds",
		"embedding-provider", "log-path", "log-level",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	loadConfig := func() (*config.Config, error) {
		return config.Load(v)
	}

	root.AddCommand(newServeCmd(loadConfig))
	root.AddCommand(newSyncCmd(loadConfig))
	root.AddCommand(newRoutingCmd(loadConfig))

	return root
}
