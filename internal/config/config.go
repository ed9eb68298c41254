package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configDir  = ".config/mcpherd"
	configFile = "config.json"
)

// ConfigPath returns the full path to the default config file.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, configDir, configFile), nil
}

// Load reads the configuration from the default path.
// Returns a new empty config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from a specific path. The format is
// selected by extension: .yaml/.yml files are parsed as YAML, everything
// else as JSON. Returns a new empty config if the file doesn't exist.
func LoadFrom(path string) (*Config, error) {
	path, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if isYAMLPath(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Initialize maps if nil (for older configs)
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]ServerConfig)
	}

	// Backfill ServerConfig.Name from map keys
	for name, srv := range cfg.Servers {
		if srv.Name == "" {
			srv.Name = name
			cfg.Servers[name] = srv
		}
	}

	return &cfg, nil
}

// Save writes the configuration to the default path atomically.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to a specific path atomically.
// Uses a temp file + rename pattern for atomic writes.
func SaveTo(cfg *Config, path string) error {
	path, err := expandHome(path)
	if err != nil {
		return err
	}

	// Ensure config directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	// Update timestamp
	cfg.LastModified = time.Now()

	var data []byte
	if isYAMLPath(path) {
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	// Write to temp file first
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile) // Clean up temp file on failure
		return fmt.Errorf("rename config: %w", err)
	}

	return nil
}

// AddServer adds a new server to the config.
// Returns an error if a server with the same name already exists.
func (c *Config) AddServer(srv ServerConfig) error {
	if err := srv.Validate(); err != nil {
		return err
	}
	if _, exists := c.Servers[srv.Name]; exists {
		return fmt.Errorf("server %q already exists", srv.Name)
	}
	if srv.Kind == "" {
		srv.Kind = TransportStdio
	}
	c.Servers[srv.Name] = srv
	return nil
}

// UpdateServer updates an existing server configuration.
func (c *Config) UpdateServer(srv ServerConfig) error {
	if _, exists := c.Servers[srv.Name]; !exists {
		return fmt.Errorf("server %q not found", srv.Name)
	}
	c.Servers[srv.Name] = srv
	return nil
}

// DeleteServer removes a server from the config, dropping any dependency
// references other servers hold on it.
func (c *Config) DeleteServer(name string) error {
	if _, exists := c.Servers[name]; !exists {
		return fmt.Errorf("server %q not found", name)
	}
	delete(c.Servers, name)

	for other, srv := range c.Servers {
		srv.DependsOn = removeString(srv.DependsOn, name)
		c.Servers[other] = srv
	}
	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func removeString(slice []string, s string) []string {
	if len(slice) == 0 {
		return slice
	}
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if item != s {
			result = append(result, item)
		}
	}
	return result
}
