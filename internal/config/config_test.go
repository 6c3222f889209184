package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	tests := []struct {
		name  string
		field string
		want  string
		got   string
	}{
		{"scheduler timezone", "scheduler.timezone", "UTC", cfg.Scheduler.Timezone},
		{"store path", "scheduler.store_path", "~/.tickd/jobs.json", cfg.Scheduler.StorePath},
		{"logging level", "logging.level", "info", cfg.Logging.Level},
		{"logging format", "logging.format", "text", cfg.Logging.Format},
		{"logging output", "logging.output", "stdout", cfg.Logging.Output},
		{"metrics listen", "metrics.listen", "127.0.0.1:9091", cfg.Metrics.Listen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Expected %s = %s, got %s", tt.field, tt.want, tt.got)
			}
		})
	}

	if cfg.Scheduler.TickIntervalSeconds != 10 {
		t.Errorf("Expected scheduler.tick_interval_seconds = 10, got %d", cfg.Scheduler.TickIntervalSeconds)
	}
	if cfg.Scheduler.JobTimeoutSeconds != 60 {
		t.Errorf("Expected scheduler.job_timeout_seconds = 60, got %d", cfg.Scheduler.JobTimeoutSeconds)
	}
	if cfg.Scheduler.HookTimeoutMs != 2000 {
		t.Errorf("Expected scheduler.hook_timeout_ms = 2000, got %d", cfg.Scheduler.HookTimeoutMs)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "missing timezone",
			mutate: func(cfg *Config) {
				cfg.Scheduler.Timezone = ""
			},
			wantErr: true,
		},
		{
			name: "unknown timezone",
			mutate: func(cfg *Config) {
				cfg.Scheduler.Timezone = "Mars/Olympus_Mons"
			},
			wantErr: true,
		},
		{
			name: "missing store path",
			mutate: func(cfg *Config) {
				cfg.Scheduler.StorePath = ""
			},
			wantErr: true,
		},
		{
			name: "non-positive tick interval",
			mutate: func(cfg *Config) {
				cfg.Scheduler.TickIntervalSeconds = -1
			},
			wantErr: true,
		},
		{
			name: "non-positive job timeout",
			mutate: func(cfg *Config) {
				cfg.Scheduler.JobTimeoutSeconds = -5
			},
			wantErr: true,
		},
		{
			name: "invalid logging level",
			mutate: func(cfg *Config) {
				cfg.Logging.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "invalid logging format",
			mutate: func(cfg *Config) {
				cfg.Logging.Format = "xml"
			},
			wantErr: true,
		},
		{
			name: "metrics enabled without listen address",
			mutate: func(cfg *Config) {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Listen = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("Validate() errors = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	content := `
[scheduler]
timezone = "Europe/Berlin"
store_path = "/var/lib/tickd/jobs.json"
tick_interval_seconds = 5
job_timeout_seconds = 30
hook_timeout_ms = 500

[logging]
level = "debug"
format = "json"

[metrics]
enabled = true
listen = "0.0.0.0:9100"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.Timezone != "Europe/Berlin" {
		t.Errorf("Expected timezone Europe/Berlin, got %s", cfg.Scheduler.Timezone)
	}
	if cfg.Scheduler.TickInterval() != 5*time.Second {
		t.Errorf("Expected tick interval 5s, got %s", cfg.Scheduler.TickInterval())
	}
	if cfg.Scheduler.JobTimeout() != 30*time.Second {
		t.Errorf("Expected job timeout 30s, got %s", cfg.Scheduler.JobTimeout())
	}
	if cfg.Scheduler.HookTimeout() != 500*time.Millisecond {
		t.Errorf("Expected hook timeout 500ms, got %s", cfg.Scheduler.HookTimeout())
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics to be enabled")
	}

	// Unset fields fall back to defaults
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default logging output stdout, got %s", cfg.Logging.Output)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Error("Expected error for missing config file, got nil")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[scheduler\ntimezone = "), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("Expected error for invalid TOML, got nil")
	}
}

func TestExpandStorePath(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.StorePath = "~/state/jobs.json"

	path, err := cfg.ExpandStorePath()
	if err != nil {
		t.Fatalf("ExpandStorePath() failed: %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() failed: %v", err)
	}
	want := filepath.Join(home, "state", "jobs.json")
	if path != want {
		t.Errorf("Expected %s, got %s", want, path)
	}

	cfg.Scheduler.StorePath = "/absolute/jobs.json"
	path, err = cfg.ExpandStorePath()
	if err != nil {
		t.Fatalf("ExpandStorePath() failed: %v", err)
	}
	if path != "/absolute/jobs.json" {
		t.Errorf("Expected /absolute/jobs.json, got %s", path)
	}
}
