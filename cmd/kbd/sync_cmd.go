package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cristinecula/knowledge-mcp/internal/config"
)

func newSyncCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	sync := &cobra.Command{
		Use:   "sync",
		Short: "run one sync cycle against every routed repo",
	}
	sync.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "fetch and reconcile every routed repo into the local index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.Sync.Pull(cmd.Context()); err != nil {
				return fmt.Errorf("sync pull: %w", err)
			}
			return nil
		},
	})
	sync.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "serialize, commit, and push every active entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.Sync.Push(cmd.Context()); err != nil {
				return fmt.Errorf("sync push: %w", err)
			}
			return nil
		},
	})
	return sync
}
