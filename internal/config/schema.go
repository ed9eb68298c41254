// Package config provides configuration schema and persistence for mcpherd.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the current config schema version.
const SchemaVersion = 1

// TransportKind represents the transport type for an MCP server.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportHTTP      TransportKind = "http"
	TransportSSE       TransportKind = "sse"
	TransportWebSocket TransportKind = "websocket"
)

// Duration wraps time.Duration so configs can carry values like "30s" in
// both JSON and YAML.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string ("1s", "500ms") or a number of
// nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration: %s", string(data))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Or returns the value, or fallback when unset.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

// ServerConfig describes one MCP server.
type ServerConfig struct {
	Name      string        `json:"name" yaml:"name"`
	Kind      TransportKind `json:"kind" yaml:"kind"`
	Enabled   *bool         `json:"enabled,omitempty" yaml:"enabled,omitempty"`     // nil treated as true
	Autostart bool          `json:"autostart,omitempty" yaml:"autostart,omitempty"` // include in StartAll

	// Stdio transport.
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Network transports (reserved; only stdio is constructible).
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	DependsOn         []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	RequestTimeout    Duration `json:"requestTimeout,omitempty" yaml:"requestTimeout,omitempty"`
	RetryCount        int      `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
	AutoApprovedTools []string `json:"autoApprovedTools,omitempty" yaml:"autoApprovedTools,omitempty"`
	LogLevel          string   `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
}

// IsEnabled returns whether the server is enabled (nil defaults to true).
func (s ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// SetEnabled sets the enabled state.
func (s *ServerConfig) SetEnabled(enabled bool) {
	s.Enabled = &enabled
}

// GetKind returns the transport kind, defaulting to stdio.
func (s ServerConfig) GetKind() TransportKind {
	if s.Kind == "" {
		return TransportStdio
	}
	return s.Kind
}

// Validate checks the fields required by the configured transport.
func (s ServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("server name is required")
	}
	switch s.GetKind() {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("server %q: command is required for stdio transport", s.Name)
		}
	case TransportHTTP, TransportSSE, TransportWebSocket:
		if s.URL == "" {
			return fmt.Errorf("server %q: url is required for %s transport", s.Name, s.GetKind())
		}
	default:
		return fmt.Errorf("server %q: unknown transport kind %q", s.Name, s.Kind)
	}
	return nil
}

// RuntimeConfig holds the lifecycle supervision options, all independently
// configurable per runtime instance.
type RuntimeConfig struct {
	StartupTimeout         Duration `json:"startupTimeout,omitempty" yaml:"startupTimeout,omitempty"`
	ShutdownTimeout        Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`
	MaxRestarts            int      `json:"maxRestarts,omitempty" yaml:"maxRestarts,omitempty"`
	RestartDelay           Duration `json:"restartDelay,omitempty" yaml:"restartDelay,omitempty"`
	HealthInterval         Duration `json:"healthInterval,omitempty" yaml:"healthInterval,omitempty"`
	MaxConsecutiveFailures int      `json:"maxConsecutiveFailures,omitempty" yaml:"maxConsecutiveFailures,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	SchemaVersion int                     `json:"schemaVersion" yaml:"schemaVersion"`
	Servers       map[string]ServerConfig `json:"servers" yaml:"servers"`
	Runtime       RuntimeConfig           `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	LastModified  time.Time               `json:"lastModified" yaml:"lastModified"`
}

// NewConfig creates a new empty configuration with default values.
func NewConfig() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Servers:       make(map[string]ServerConfig),
		LastModified:  time.Now(),
	}
}

// ServerList returns the servers as a slice, sorted by name.
func (c *Config) ServerList() []ServerConfig {
	servers := make([]ServerConfig, 0, len(c.Servers))
	for _, s := range c.Servers {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers
}

// GetServer returns a server by name, or nil if not found.
func (c *Config) GetServer(name string) *ServerConfig {
	if s, ok := c.Servers[name]; ok {
		return &s
	}
	return nil
}
