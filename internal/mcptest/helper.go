// Package mcptest provides the subprocess fake-server harness used by the
// transport and lifecycle tests.
package mcptest

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/mcptest/fakeserver"
)

// FakeServerConfig aliases fakeserver.Config for convenience.
type FakeServerConfig = fakeserver.Config

// Tool aliases fakeserver.Tool.
type Tool = fakeserver.Tool

// RPCError aliases fakeserver.RPCError.
type RPCError = fakeserver.RPCError

// ServerConfig builds a stdio server config that re-execs the current test
// binary as a fake MCP server scripted by cfg. The stdio transport spawns it
// like any real server command.
//
// The calling package must define the helper entry point:
//
//	func TestHelperProcess(t *testing.T) {
//	    mcptest.RunHelperProcess(t)
//	}
func ServerConfig(t *testing.T, name string, cfg FakeServerConfig) config.ServerConfig {
	t.Helper()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal fake server config: %v", err)
	}

	return config.ServerConfig{
		Name:    name,
		Kind:    config.TransportStdio,
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Env: map[string]string{
			"GO_WANT_HELPER_PROCESS": "1",
			"FAKE_MCP_CFG":           string(cfgJSON),
		},
	}
}

// RunHelperProcess implements the fake MCP server when the test binary is
// re-exec'd with GO_WANT_HELPER_PROCESS=1. It is a no-op in a normal test
// run.
func RunHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	cfgJSON := os.Getenv("FAKE_MCP_CFG")
	if cfgJSON == "" {
		os.Exit(2)
	}

	var cfg fakeserver.Config
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		os.Exit(2)
	}

	if err := fakeserver.Serve(context.Background(), os.Stdin, os.Stdout, cfg); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}
