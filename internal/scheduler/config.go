package scheduler

import (
	"time"

	"github.com/smallbiznis/clockwise/internal/config"
)

const (
	JobLedgerIngest = "ledger_ingest"
	JobLedgerHealth = "ledger_health"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval      time.Duration
	HealthInterval   time.Duration
	IngestBatchSize  int
	MaxIngestBatches int
	IngestTimeout    time.Duration
	HealthTimeout    time.Duration
	LeaseTTL         time.Duration
	EnabledJobs      []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      30 * time.Second,
		HealthInterval:   5 * time.Minute,
		MaxIngestBatches: 20,
		IngestTimeout:    2 * time.Minute,
		HealthTimeout:    5 * time.Minute,
		LeaseTTL:         2 * time.Minute,
	}
}

// ProvideConfig maps application config onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:    cfg.Scheduler.RunInterval,
		HealthInterval: cfg.Scheduler.HealthInterval,
		LeaseTTL:       cfg.Redis.LeaseTTL,
		EnabledJobs:    cfg.Scheduler.EnabledJobs,
	}.withDefaults()
}

// withDefaults leaves IngestBatchSize at zero so the poll batch size from the
// rules config applies.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = defaults.HealthInterval
	}
	if c.IngestBatchSize < 0 {
		c.IngestBatchSize = 0
	}
	if c.MaxIngestBatches <= 0 {
		c.MaxIngestBatches = defaults.MaxIngestBatches
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = defaults.IngestTimeout
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = defaults.HealthTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaults.LeaseTTL
	}
	if c.LeaseTTL < c.IngestTimeout {
		c.LeaseTTL = c.IngestTimeout
	}
	return c
}
