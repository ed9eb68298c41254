package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpherd/internal/config"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	Long: `List all configured MCP servers.

By default, outputs a human-readable table. Use --json for machine-readable output.

Examples:
  mcpherd list
  mcpherd list --json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")

	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	servers := cfg.ServerList()
	if listJSON {
		return listOutputJSON(servers)
	}
	return listOutputTable(servers)
}

func listOutputJSON(servers []config.ServerConfig) error {
	type serverView struct {
		Name      string            `json:"name"`
		Command   string            `json:"command,omitempty"`
		Args      []string          `json:"args,omitempty"`
		Cwd       string            `json:"cwd,omitempty"`
		Env       map[string]string `json:"env,omitempty"`
		DependsOn []string          `json:"dependsOn,omitempty"`
		Enabled   bool              `json:"enabled"`
		Autostart bool              `json:"autostart"`
	}

	views := make([]serverView, len(servers))
	for i, srv := range servers {
		views[i] = serverView{
			Name:      srv.Name,
			Command:   srv.Command,
			Args:      srv.Args,
			Cwd:       srv.Cwd,
			Env:       srv.Env,
			DependsOn: srv.DependsOn,
			Enabled:   srv.IsEnabled(),
			Autostart: srv.Autostart,
		}
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func listOutputTable(servers []config.ServerConfig) error {
	if len(servers) == 0 {
		fmt.Println("No servers configured")
		return nil
	}

	nameWidth := 4 // "NAME"
	cmdWidth := 7  // "COMMAND"
	depWidth := 7  // "DEPENDS"

	for _, srv := range servers {
		if len(srv.Name) > nameWidth {
			nameWidth = len(srv.Name)
		}
		if n := len(formatCommand(srv)); n > cmdWidth {
			cmdWidth = n
		}
		if n := len(strings.Join(srv.DependsOn, ",")); n > depWidth {
			depWidth = n
		}
	}

	// Cap widths for readability
	if cmdWidth > 35 {
		cmdWidth = 35
	}

	fmt.Printf("%-*s  %-*s  %-*s  %-9s  %s\n", nameWidth, "NAME", cmdWidth, "COMMAND", depWidth, "DEPENDS", "AUTOSTART", "ENABLED")

	for _, srv := range servers {
		cmdStr := formatCommand(srv)
		if len(cmdStr) > cmdWidth {
			cmdStr = cmdStr[:cmdWidth-3] + "..."
		}

		deps := strings.Join(srv.DependsOn, ",")
		if deps == "" {
			deps = "-"
		}

		autostart := "no"
		if srv.Autostart {
			autostart = "yes"
		}
		enabled := "yes"
		if !srv.IsEnabled() {
			enabled = "no"
		}

		fmt.Printf("%-*s  %-*s  %-*s  %-9s  %s\n", nameWidth, srv.Name, cmdWidth, cmdStr, depWidth, deps, autostart, enabled)
	}

	return nil
}

func formatCommand(srv config.ServerConfig) string {
	if srv.Command == "" {
		return ""
	}
	if len(srv.Args) == 0 {
		return srv.Command
	}
	return srv.Command + " " + strings.Join(srv.Args, " ")
}
