package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cristinecula/knowledge-mcp/internal/config"
)

func newRoutingCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	routing := &cobra.Command{
		Use:   "routing",
		Short: "inspect the routing table",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "print the resolved routing table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rt, err := loadRouting(cfg)
			if err != nil {
				return err
			}
			switch format {
			case "toml":
				return rt.ExportTOML(os.Stdout)
			case "json", "":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rt)
			default:
				return fmt.Errorf("routing show: unknown format %q (want json or toml)", format)
			}
		},
	}
	show.Flags().StringVar(&format, "format", "json", "output format: json or toml")
	routing.AddCommand(show)
	return routing
}
