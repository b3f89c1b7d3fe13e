// Package config loads the settings shared by the devterm client and the
// relay server. Files ending in .toml are decoded as TOML; everything else is
// treated as YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Terminal  TerminalConfig  `yaml:"terminal" toml:"terminal"`
	Relay     RelayConfig     `yaml:"relay" toml:"relay"`
	Inventory InventoryConfig `yaml:"inventory" toml:"inventory"`
}

type ServerConfig struct {
	Port int    `yaml:"port" toml:"port"`
	Host string `yaml:"host" toml:"host"`
	// TokenHash is a bcrypt hash of the API token. Empty disables auth.
	TokenHash      string   `yaml:"token_hash" toml:"token_hash"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// TerminalConfig holds the client side of the terminal channel.
type TerminalConfig struct {
	BrokerURL         string        `yaml:"broker_url" toml:"broker_url"`
	APIURL            string        `yaml:"api_url" toml:"api_url"`
	Token             string        `yaml:"token" toml:"token"`
	TopicPrefix       string        `yaml:"topic_prefix" toml:"topic_prefix"`
	Destination       string        `yaml:"destination" toml:"destination"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" toml:"reconnect_delay"`
	HeartbeatIncoming time.Duration `yaml:"heartbeat_incoming" toml:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration `yaml:"heartbeat_outgoing" toml:"heartbeat_outgoing"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" toml:"connect_timeout"`
}

// RelayConfig controls command execution on the relay host.
type RelayConfig struct {
	Shell          string        `yaml:"shell" toml:"shell"`
	CommandTimeout time.Duration `yaml:"command_timeout" toml:"command_timeout"`
	CommandRate    float64       `yaml:"command_rate" toml:"command_rate"`
	CommandBurst   int           `yaml:"command_burst" toml:"command_burst"`
	Heartbeat      time.Duration `yaml:"heartbeat" toml:"heartbeat"`
	MaxConnections int           `yaml:"max_connections" toml:"max_connections"`
}

type InventoryConfig struct {
	Driver  string       `yaml:"driver" toml:"driver"` // "memory" or "sqlite"
	Path    string       `yaml:"path" toml:"path"`
	Devices []DeviceSeed `yaml:"devices" toml:"devices"`
}

// DeviceSeed is a device entry declared in the config file.
type DeviceSeed struct {
	ID     string `yaml:"id" toml:"id"`
	Name   string `yaml:"name" toml:"name"`
	IP     string `yaml:"ip" toml:"ip"`
	OS     string `yaml:"os" toml:"os"`
	Status string `yaml:"status" toml:"status"`
	Alerts int    `yaml:"alerts" toml:"alerts"`
}

const (
	DefaultTopicPrefix = "terminal-events"
	DefaultDestination = "/app/terminal"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			BrokerURL:         "ws://127.0.0.1:8080/ws",
			APIURL:            "http://127.0.0.1:8080/api",
			TopicPrefix:       DefaultTopicPrefix,
			Destination:       DefaultDestination,
			ReconnectDelay:    5 * time.Second,
			HeartbeatIncoming: 4 * time.Second,
			HeartbeatOutgoing: 4 * time.Second,
			ConnectTimeout:    10 * time.Second,
		},
		Relay: RelayConfig{
			Shell:          "sh",
			CommandTimeout: 30 * time.Second,
			CommandRate:    5,
			CommandBurst:   10,
			Heartbeat:      4 * time.Second,
			MaxConnections: 64,
		},
		Inventory: InventoryConfig{
			Driver: "memory",
		},
	}
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects settings the client or relay cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Terminal.ReconnectDelay < 0 {
		return fmt.Errorf("terminal.reconnect_delay must not be negative")
	}
	if c.Terminal.HeartbeatIncoming < 0 || c.Terminal.HeartbeatOutgoing < 0 {
		return fmt.Errorf("terminal heartbeats must not be negative")
	}
	if strings.TrimSpace(c.Terminal.Destination) == "" {
		return fmt.Errorf("terminal.destination is required")
	}
	if strings.TrimSpace(c.Relay.Shell) == "" {
		return fmt.Errorf("relay.shell is required")
	}
	if c.Relay.CommandTimeout <= 0 {
		return fmt.Errorf("relay.command_timeout must be positive")
	}
	if c.Relay.CommandRate <= 0 || c.Relay.CommandBurst <= 0 {
		return fmt.Errorf("relay.command_rate and relay.command_burst must be positive")
	}
	if c.Relay.Heartbeat < 0 || c.Relay.MaxConnections < 0 {
		return fmt.Errorf("relay.heartbeat and relay.max_connections must not be negative")
	}
	switch c.Inventory.Driver {
	case "memory", "":
	case "sqlite":
		if c.Inventory.Path == "" {
			return fmt.Errorf("inventory.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("inventory.driver %q is not supported", c.Inventory.Driver)
	}
	return nil
}

// Topic returns the per-device topic the relay publishes terminal output on.
func (t TerminalConfig) Topic(deviceID string) string {
	prefix := strings.TrimSuffix(t.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/" + deviceID
}
