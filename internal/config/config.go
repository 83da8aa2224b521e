// Package config loads the deployment configuration for the parley CLI.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Redis configures the distributed session backend. An empty address
// means sessions live in process memory only.
type Redis struct {
	Address     string        `yaml:"address"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	Environment string        `yaml:"environment"`
	TTL         time.Duration `yaml:"ttl"`
	// HashKey, when set, is the HMAC key used to hash session IDs in
	// backend keys so raw IDs never appear in the keyspace.
	HashKey string `yaml:"hash_key"`
}

// Engine tunes the orchestration safety bounds. Zero values keep the
// engine defaults.
type Engine struct {
	MaxVisits       int `yaml:"max_visits"`
	VisitWindow     int `yaml:"visit_window"`
	RecursionBudget int `yaml:"recursion_budget"`
	MaxRetries      int `yaml:"max_retries"`
}

// Exception is one entry of the phase adjacency-exception table.
type Exception struct {
	Phase string `yaml:"phase"`
	Node  string `yaml:"node"`
}

// Server configures the HTTP and MCP listeners.
type Server struct {
	Port    int `yaml:"port"`
	MCPPort int `yaml:"mcp_port"`
}

// Config is the root deployment configuration.
type Config struct {
	LogLevel   string      `yaml:"log_level"`
	Redis      Redis       `yaml:"redis"`
	Engine     Engine      `yaml:"engine"`
	Exceptions []Exception `yaml:"exceptions"`
	Server     Server      `yaml:"server"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server:   Server{Port: 8080, MCPPort: 8081},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured level name onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
