package config

import "time"

// Config is the root configuration loaded from the TOML file
type Config struct {
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// SchedulerConfig configures the job scheduler core
type SchedulerConfig struct {
	Timezone            string `toml:"timezone"`              // IANA timezone name used when a job has no override
	StorePath           string `toml:"store_path"`            // path to the persisted jobs file
	TickIntervalSeconds int    `toml:"tick_interval_seconds"` // how often the dispatch loop wakes
	JobTimeoutSeconds   int    `toml:"job_timeout_seconds"`   // per-job executor timeout
	HookTimeoutMs       int    `toml:"hook_timeout_ms"`       // per-callback hook timeout
}

// TickInterval returns the dispatch loop interval as a duration
func (c *SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// JobTimeout returns the per-job executor timeout as a duration
func (c *SchedulerConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// HookTimeout returns the per-callback hook timeout as a duration
func (c *SchedulerConfig) HookTimeout() time.Duration {
	return time.Duration(c.HookTimeoutMs) * time.Millisecond
}

// LoggingConfig configures structured logging output
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

// MetricsConfig configures the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}
