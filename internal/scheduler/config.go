package scheduler

import (
	"time"
)

// Config controls evaluator intervals and batch sizes.
type Config struct {
	RunInterval     time.Duration
	StartupDelay    time.Duration
	WarnBatchSize   int
	ExpireBatchSize int
	EnabledJobs     []string
	LeaderLockTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:     12 * time.Hour,
		StartupDelay:    time.Minute,
		WarnBatchSize:   100,
		ExpireBatchSize: 100,
		LeaderLockTTL:   10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.StartupDelay < 0 {
		c.StartupDelay = defaults.StartupDelay
	}
	if c.WarnBatchSize <= 0 {
		c.WarnBatchSize = defaults.WarnBatchSize
	}
	if c.ExpireBatchSize <= 0 {
		c.ExpireBatchSize = defaults.ExpireBatchSize
	}
	if c.LeaderLockTTL <= 0 {
		c.LeaderLockTTL = defaults.LeaderLockTTL
	}
	return c
}
