package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/claude-session-monitor/internal/stuck"
)

// Config holds all application configuration
type Config struct {
	Monitor       MonitorConfig       `toml:"monitor"`
	Detection     stuck.Config        `toml:"detection"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
}

// MonitorConfig holds stream and storage settings
type MonitorConfig struct {
	StreamURL            string `toml:"stream_url"`
	MutationAPIURL       string `toml:"mutation_api_url"`
	DatabasePath         string `toml:"database_path"`
	HistoryRetentionDays int    `toml:"history_retention_days"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds the dashboard API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Monitor: MonitorConfig{
			StreamURL:            "ws://127.0.0.1:8090/api/stream",
			MutationAPIURL:       "http://127.0.0.1:8090/api",
			DatabasePath:         filepath.Join(home, ".claude-session-monitor", "history.db"),
			HistoryRetentionDays: 30,
		},
		Detection: stuck.DefaultConfig(),
		Web: WebConfig{
			Port: 8085,
			Host: "127.0.0.1",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.Monitor.DatabasePath = ExpandPath(cfg.Monitor.DatabasePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a TOML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration before it is applied. An invalid
// update is rejected and the prior configuration stays active.
func (c *Config) Validate() error {
	if c.Monitor.StreamURL == "" {
		return fmt.Errorf("monitor.stream_url is required")
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	if c.Monitor.HistoryRetentionDays < 0 {
		return fmt.Errorf("monitor.history_retention_days must not be negative")
	}
	if err := c.Detection.Validate(); err != nil {
		return err
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-session-monitor", "config.toml")
}
