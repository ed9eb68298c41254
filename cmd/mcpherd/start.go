package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var startAll bool

var startCmd = &cobra.Command{
	Use:   "start [name...]",
	Short: "Start MCP servers and supervise them",
	Long: `Start MCP servers in the foreground and supervise them until
interrupted. Crashed servers are restarted with exponential backoff, and
dependencies are started in order.

With no arguments, starts the servers marked autostart. Use --all to start
every enabled server, or name the servers to start.

Examples:
  mcpherd start
  mcpherd start --all
  mcpherd start db api`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startAll, "all", false, "Start every enabled server")

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	for _, name := range args {
		if cfg.GetServer(name) == nil {
			return fmt.Errorf("server %q not found", name)
		}
	}

	rt, err := newRuntime(cfg, os.Stderr, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	switch {
	case startAll:
		err = rt.manager.StartAll(ctx)
	case len(args) > 0:
		for _, name := range args {
			if serr := rt.manager.Start(ctx, name); serr != nil {
				err = serr
				break
			}
		}
	default:
		err = rt.manager.StartAutostart(ctx)
	}
	cancel()
	if err != nil {
		return err
	}

	running := 0
	for _, st := range rt.manager.Statuses() {
		fmt.Printf("%s: %s\n", st.Name, st.State)
		if st.State.IsActive() {
			running++
		}
	}
	if running == 0 {
		return fmt.Errorf("no servers running")
	}
	fmt.Printf("Supervising %d server(s), press Ctrl-C to stop\n", running)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("Shutting down")
	return nil
}
