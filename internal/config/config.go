// Package config loads and validates tickd configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from a TOML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate checks the configuration for errors
func (c *Config) Validate() []error {
	var errors []error

	if c.Scheduler.Timezone == "" {
		errors = append(errors, fmt.Errorf("scheduler.timezone is required"))
	} else if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		errors = append(errors, fmt.Errorf("invalid scheduler.timezone: %s", c.Scheduler.Timezone))
	}

	if c.Scheduler.StorePath == "" {
		errors = append(errors, fmt.Errorf("scheduler.store_path is required"))
	}

	if c.Scheduler.TickIntervalSeconds <= 0 {
		errors = append(errors, fmt.Errorf("scheduler.tick_interval_seconds must be positive"))
	}
	if c.Scheduler.JobTimeoutSeconds <= 0 {
		errors = append(errors, fmt.Errorf("scheduler.job_timeout_seconds must be positive"))
	}
	if c.Scheduler.HookTimeoutMs <= 0 {
		errors = append(errors, fmt.Errorf("scheduler.hook_timeout_ms must be positive"))
	}

	if c.Logging.Level == "" {
		errors = append(errors, fmt.Errorf("logging.level is required"))
	} else {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
		}
	}
	if c.Logging.Format != "" {
		validFormats := map[string]bool{"json": true, "text": true}
		if !validFormats[strings.ToLower(c.Logging.Format)] {
			errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errors = append(errors, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}

	return errors
}

// ExpandStorePath resolves ~ in the configured store path
func (c *Config) ExpandStorePath() (string, error) {
	path := c.Scheduler.StorePath
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}
	return filepath.Clean(path), nil
}
