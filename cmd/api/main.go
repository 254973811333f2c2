// Command api runs the HTTP API and its operational tasks.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "north-api",
	Short: "North goal-tree API server",
	Long: `North serves the goal-tree API: tree and element editing, model-backed
decomposition and refinement, and research attached to ideal states.

Configuration comes from environment variables, optionally overlaid by the
YAML file named in CONFIG_FILE.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, initTableCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
