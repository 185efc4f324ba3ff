// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Parley binaries.
type Config struct {
	// Environment identifies the deployment type (development, staging,
	// production).
	Environment Environment `yaml:"environment"`

	// Server configures the endpoints of the messaging server.
	Server ServerConfig `yaml:"server"`

	// Session configures credential storage.
	Session SessionConfig `yaml:"session"`

	// Viewer configures the terminal client.
	Viewer ViewerConfig `yaml:"viewer"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Viewer  *ViewerConfig  `yaml:"viewer,omitempty"`
}

// ServerConfig configures the endpoints of the messaging server.
type ServerConfig struct {
	// BaseURL is the base URL of the request/response API
	// (e.g., "http://localhost:3000"). Required.
	BaseURL string `yaml:"base_url"`

	// SocketURL is the websocket URL of the persistent connection
	// (e.g., "ws://localhost:3000/socket"). Required.
	SocketURL string `yaml:"socket_url"`
}

// SessionConfig configures credential storage.
type SessionConfig struct {
	// TokenFile is where the session token is read from after login.
	// Default: ${HOME}/.cache/parley/token
	TokenFile string `yaml:"token_file"`
}

// ViewerConfig configures the terminal client.
type ViewerConfig struct {
	// PageSize is the number of messages fetched per feed snapshot.
	// Default: 30 (matches the server's default page).
	PageSize int `yaml:"page_size"`

	// LogFile receives JSON log records. Empty disables file logging —
	// the viewer owns the terminal, so logs never go to stderr while
	// the UI is active.
	LogFile string `yaml:"log_file"`
}

// Default returns the default configuration. These defaults are used as
// a base before loading the config file. They exist primarily to ensure
// all fields have sensible zero-values, not as a fallback — the config
// file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	cacheDir := filepath.Join(homeDir, ".cache", "parley")

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			BaseURL:   "http://localhost:3000",
			SocketURL: "ws://localhost:3000/socket",
		},
		Session: SessionConfig{
			TokenFile: filepath.Join(cacheDir, "token"),
		},
		Viewer: ViewerConfig{
			PageSize: 30,
		},
	}
}

// Load loads configuration from the PARLEY_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults — if PARLEY_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PARLEY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PARLEY_CONFIG environment variable not set; " +
			"set it to the path of your parley.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific override
// section matching Config.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		c.Server = *overrides.Server
	}
	if overrides.Session != nil {
		c.Session = *overrides.Session
	}
	if overrides.Viewer != nil {
		c.Viewer = *overrides.Viewer
	}
}

func (c *Config) validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Server.SocketURL == "" {
		return fmt.Errorf("server.socket_url is required")
	}
	if c.Viewer.PageSize <= 0 {
		return fmt.Errorf("viewer.page_size must be positive, got %d", c.Viewer.PageSize)
	}
	return nil
}
