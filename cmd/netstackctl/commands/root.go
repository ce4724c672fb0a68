// Package commands implements the netstackctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// statsFile is the path netstackd writes its JSON stats snapshot to.
	statsFile string
)

// rootCmd is the top-level cobra command for netstackctl.
var rootCmd = &cobra.Command{
	Use:   "netstackctl",
	Short: "CLI client for the netstackd daemon",
	Long:  "netstackctl reads netstackd's local stats file and configuration to report on the running stack.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")
	rootCmd.PersistentFlags().StringVar(&statsFile, "stats-file", "/var/run/netstackd/stats.json",
		"path to netstackd's stats snapshot file")

	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configValidateCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
