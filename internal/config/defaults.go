package config

// applyDefaults fills in default values for fields that were not set
func applyDefaults(cfg *Config) {
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Scheduler.StorePath == "" {
		cfg.Scheduler.StorePath = "~/.tickd/jobs.json"
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 10
	}
	if cfg.Scheduler.JobTimeoutSeconds == 0 {
		cfg.Scheduler.JobTimeoutSeconds = 60
	}
	if cfg.Scheduler.HookTimeoutMs == 0 {
		cfg.Scheduler.HookTimeoutMs = 2000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9091"
	}
}
