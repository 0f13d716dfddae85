package scheduler

import (
	"time"

	appconfig "github.com/classbill/classbill/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
	// ReminderWindow is how far ahead of expiry the warning job looks.
	ReminderWindow time.Duration
	EnabledJobs    []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    24 * time.Hour,
		BatchSize:      50,
		JobTimeout:     30 * time.Second,
		ReminderWindow: 7 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = defaults.ReminderWindow
	}
	return c
}

func ProvideConfig(cfg appconfig.Config) Config {
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}
