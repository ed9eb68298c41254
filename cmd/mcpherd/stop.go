package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpherd/internal/lifecycle"
)

var stopAllFlag bool

var stopCmd = &cobra.Command{
	Use:   "stop [name...]",
	Short: "Stop running MCP servers",
	Long: `Stop server processes left running by a previous mcpherd session.

Servers are found through the PID tracking file and sent SIGTERM. A server
supervised by a live session is stopped there too, since the session notices
the exit and does not restart a terminated process it no longer tracks.

Examples:
  mcpherd stop my-server
  mcpherd stop --all`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopAllFlag, "all", false, "Stop every tracked server")

	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	if !stopAllFlag && len(args) == 0 {
		return fmt.Errorf("name a server to stop, or pass --all")
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pids, err := lifecycle.NewPIDTracker(logger)
	if err != nil {
		return fmt.Errorf("pid tracker: %w", err)
	}

	if stopAllFlag {
		stopped := pids.CleanupOrphans()
		fmt.Printf("Stopped %d server(s)\n", stopped)
		return nil
	}

	for _, name := range args {
		if pids.Terminate(name) {
			fmt.Printf("Stopped %q\n", name)
		} else {
			fmt.Printf("%q is not running\n", name)
		}
	}
	return nil
}
