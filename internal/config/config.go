// Package config loads resolver configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Resolution ResolutionConfig `yaml:"resolution" json:"resolution"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Audit      AuditConfig      `yaml:"audit" json:"audit"`
}

// ResolutionConfig configures the resolution engine.
type ResolutionConfig struct {
	// Strategy is conservative, balanced or aggressive; applied uniformly
	// to every batch the resolver processes.
	Strategy string `yaml:"strategy" json:"strategy"`
	// Workers bounds concurrent entity-type partitions.
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// AuditConfig configures the resolution audit store.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Resolution: ResolutionConfig{
			Strategy: "balanced",
			Workers:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    "./data/resolution_audit.db",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when empty), then environment overrides. A .env file in the
// working directory is honored if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is operator-supplied
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides configuration from RESOLVER_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("RESOLVER_STRATEGY"); v != "" {
		c.Resolution.Strategy = v
	}
	if v := os.Getenv("RESOLVER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Resolution.Workers = n
		}
	}
	if v := os.Getenv("RESOLVER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RESOLVER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("RESOLVER_AUDIT_ENABLED"); v != "" {
		c.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RESOLVER_AUDIT_PATH"); v != "" {
		c.Audit.Path = v
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	switch c.Resolution.Strategy {
	case "conservative", "balanced", "aggressive":
	default:
		return fmt.Errorf("invalid resolution strategy %q", c.Resolution.Strategy)
	}
	if c.Resolution.Workers <= 0 {
		return fmt.Errorf("resolution workers must be positive, got %d", c.Resolution.Workers)
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit store enabled but no path configured")
	}
	return nil
}
