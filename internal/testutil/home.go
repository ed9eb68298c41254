// Package testutil provides common test utilities.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SetupTestHome points $HOME at an isolated temp directory so config reads
// and writes never touch the real ~/.config/mcpherd. The directory is cleaned
// up when the test ends.
func SetupTestHome(t *testing.T) string {
	t.Helper()

	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpHome, ".config"))

	configDir := filepath.Join(tmpHome, ".config", "mcpherd")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("create test config dir: %v", err)
	}
	return tmpHome
}

// WriteTestConfig writes a config file into the isolated $HOME.
func WriteTestConfig(t *testing.T, configJSON string) string {
	t.Helper()

	home := os.Getenv("HOME")
	if home == "" {
		t.Fatal("HOME not set, call SetupTestHome first")
	}

	configPath := filepath.Join(home, ".config", "mcpherd", "config.json")
	if err := os.WriteFile(configPath, []byte(configJSON), 0644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	return configPath
}
