// Package config defines the clawd application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level clawd configuration.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server"`
	Auth     AuthConfig   `json:"auth" yaml:"auth"`
	DBPath   string       `json:"db_path" yaml:"db_path"`
	LogLevel string       `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the dashboard HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":3737"
}

// AuthConfig controls dashboard authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// DefaultConfig returns a config with sensible defaults. The database
// path honors the CLAWD_DB environment variable so agent processes and
// the dashboard share one store without a config file.
func DefaultConfig() *Config {
	dbPath := os.Getenv("CLAWD_DB")
	if dbPath == "" {
		dbPath = "./clawd.db"
	}
	return &Config{
		Server: ServerConfig{
			Addr: ":3737",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		DBPath:   dbPath,
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
