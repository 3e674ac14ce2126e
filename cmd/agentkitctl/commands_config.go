package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentkit/internal/config"
)

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate agentkitd configuration files",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a config file and report whether it is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "  http:     %s:%d\n", cfg.Server.Host, cfg.Server.HTTPPort)
			fmt.Fprintf(cmd.OutOrStdout(), "  metrics:  %s:%d\n", cfg.Server.Host, cfg.Server.MetricsPort)
			fmt.Fprintf(cmd.OutOrStdout(), "  database: %s\n", cfg.Database.URL)
			fmt.Fprintf(cmd.OutOrStdout(), "  workdir:  %s\n", cfg.Workdir.Root)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "agentkit.yaml", "path to YAML configuration file")
	return cmd
}
