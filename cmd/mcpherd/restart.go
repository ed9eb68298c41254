package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpherd/internal/lifecycle"
)

var restartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Restart a running MCP server",
	Long: `Stop a tracked server process and start a fresh foreground session
supervising it.

Examples:
  mcpherd restart my-server`,
	Args: cobra.ExactArgs(1),
	RunE: runRestart,
}

func init() {
	rootCmd.AddCommand(restartCmd)
}

func runRestart(cmd *cobra.Command, args []string) error {
	name := args[0]

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.GetServer(name) == nil {
		return fmt.Errorf("server %q not found", name)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pids, err := lifecycle.NewPIDTracker(logger)
	if err != nil {
		return fmt.Errorf("pid tracker: %w", err)
	}
	if pids.Terminate(name) {
		fmt.Printf("Stopped %q\n", name)
		// Give the old process a moment to release resources.
		time.Sleep(500 * time.Millisecond)
	}

	return runStart(cmd, []string{name})
}
