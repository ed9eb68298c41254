package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpherd/internal/lifecycle"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which servers are running",
	Long: `Show the configured servers and whether their processes are alive,
based on the PID tracking file.

Examples:
  mcpherd status
  mcpherd status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(statusCmd)
}

type statusView struct {
	Name  string `json:"name"`
	State string `json:"state"`
	PID   int    `json:"pid,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pids, err := lifecycle.NewPIDTracker(logger)
	if err != nil {
		return fmt.Errorf("pid tracker: %w", err)
	}
	tracked := pids.PIDs()

	views := make([]statusView, 0, len(cfg.ServerList()))
	for _, srv := range cfg.ServerList() {
		v := statusView{Name: srv.Name, State: "stopped"}
		if pid, ok := tracked[srv.Name]; ok && pids.Alive(srv.Name) {
			v.State = "running"
			v.PID = pid
		}
		if !srv.IsEnabled() {
			v.State = "disabled"
		}
		views = append(views, v)
	}

	if statusJSON {
		data, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(views) == 0 {
		fmt.Println("No servers configured")
		return nil
	}

	nameWidth := 4 // "NAME"
	for _, v := range views {
		if len(v.Name) > nameWidth {
			nameWidth = len(v.Name)
		}
	}
	fmt.Printf("%-*s  %-8s  %s\n", nameWidth, "NAME", "STATE", "PID")
	for _, v := range views {
		pid := "-"
		if v.PID != 0 {
			pid = fmt.Sprintf("%d", v.PID)
		}
		fmt.Printf("%-*s  %-8s  %s\n", nameWidth, v.Name, v.State, pid)
	}
	return nil
}
