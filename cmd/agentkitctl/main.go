// Command agentkitctl is agentkit's operator CLI: a spf13/cobra
// command tree for creating/inspecting sessions and tasks against a
// running agentkitd, plus config validation, mirroring the teacher's
// cmd/nexus command-tree style of one file per command group.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var serverAddr string

	root := &cobra.Command{
		Use:          "agentkitctl",
		Short:        "agentkitctl operates an agentkit server",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", defaultServerAddr(), "agentkitd API address (host:port)")
	root.AddCommand(
		buildSessionsCmd(&serverAddr),
		buildTasksCmd(&serverAddr),
		buildConfigCmd(),
	)
	return root
}

func defaultServerAddr() string {
	if v := os.Getenv("AGENTKITCTL_SERVER"); v != "" {
		return v
	}
	return "localhost:8080"
}
