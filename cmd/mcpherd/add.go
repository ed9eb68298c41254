package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bigsy/mcpherd/internal/config"
)

var (
	addEnvFlags  []string
	addCwd       string
	addAutostart bool
	addDeps      []string
)

var addCmd = &cobra.Command{
	Use:   "add <name> -- <command> [args...]",
	Short: "Add a new MCP server",
	Long: `Add a new MCP server to the configuration.

The command and arguments follow the -- separator.

Examples:
  mcpherd add context7 -- npx -y @upstash/context7-mcp
  mcpherd add my-server --env FOO=bar --env BAZ=qux -- ./server --flag
  mcpherd add filesystem --cwd /home/user --depends-on db -- npx -y @anthropics/mcp-fs`,
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringArrayVarP(&addEnvFlags, "env", "e", nil, "Environment variable (KEY=VALUE), can be repeated")
	addCmd.Flags().StringVar(&addCwd, "cwd", "", "Working directory for the server")
	addCmd.Flags().BoolVar(&addAutostart, "autostart", false, "Start server automatically on app launch")
	addCmd.Flags().StringSliceVar(&addDeps, "depends-on", nil, "Servers that must be running first (comma-separated)")

	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	// Find the -- separator
	dashIdx := cmd.ArgsLenAtDash()
	if dashIdx == -1 {
		return fmt.Errorf("missing -- separator\n\nUsage: mcpherd add <name> -- <command> [args...]")
	}
	if dashIdx < 1 {
		return fmt.Errorf("missing server name\n\nUsage: mcpherd add <name> -- <command> [args...]")
	}
	name := args[0]

	cmdArgs := args[dashIdx:]
	if len(cmdArgs) < 1 {
		return fmt.Errorf("missing command after --\n\nUsage: mcpherd add <name> -- <command> [args...]")
	}

	env, err := parseEnvFlags(addEnvFlags)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	srv := config.ServerConfig{
		Name:      name,
		Kind:      config.TransportStdio,
		Command:   cmdArgs[0],
		Args:      cmdArgs[1:],
		Cwd:       addCwd,
		Env:       env,
		DependsOn: addDeps,
		Autostart: addAutostart,
	}

	// AddServer enforces name uniqueness
	if err := cfg.AddServer(srv); err != nil {
		return err
	}

	if err := saveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Added server %q\n", name)
	return nil
}

// parseEnvFlags parses KEY=VALUE pairs from --env flags.
func parseEnvFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}

	env := make(map[string]string)
	for _, kv := range flags {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --env format %q: expected KEY=VALUE", kv)
		}
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid --env format %q: key cannot be empty", kv)
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}
