package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mcpherd",
	Short: "MCP server runtime and supervisor",
	Long: `mcpherd supervises a herd of MCP servers: it spawns them, speaks
JSON-RPC to them over stdio, restarts them when they crash, and keeps
dependencies in order.

Running without a subcommand starts the interactive dashboard.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Suppress errors from being printed twice
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ~/.config/mcpherd/config.json)")
	rootCmd.PersistentFlags().BoolVar(&tuiDebug, "debug", false, "Enable debug logging to /tmp/mcpherd-debug.log")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
