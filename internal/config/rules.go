package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RulesConfig carries the attendance business constants. All of them can be
// changed at runtime through rules.yml.
type RulesConfig struct {
	GracePeriod        time.Duration
	OvertimeThreshold  time.Duration
	DedupWindow        time.Duration
	PollBatchSize      int
	StalenessThreshold time.Duration
	Timezone           string
}

func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		GracePeriod:        15 * time.Minute,
		OvertimeThreshold:  0,
		DedupWindow:        15 * time.Second,
		PollBatchSize:      1000,
		StalenessThreshold: 5 * time.Minute,
		Timezone:           "UTC",
	}
}

// Location resolves the attendance timezone used to assign events to dates.
func (c RulesConfig) Location() *time.Location {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RulesConfigHolder struct {
	current atomic.Value // holds RulesConfig
}

// NewStaticRulesHolder returns a holder that never reloads.
func NewStaticRulesHolder(cfg RulesConfig) *RulesConfigHolder {
	holder := &RulesConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRulesConfigHolder() (*RulesConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("rules")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/clockwise/config")
	v.AddConfigPath("/etc/clockwise")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CLOCKWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRulesConfig()
	v.SetDefault("rules.gracePeriod", defaults.GracePeriod)
	v.SetDefault("rules.overtimeThreshold", defaults.OvertimeThreshold)
	v.SetDefault("rules.dedupWindow", defaults.DedupWindow)
	v.SetDefault("rules.pollBatchSize", defaults.PollBatchSize)
	v.SetDefault("rules.stalenessThreshold", defaults.StalenessThreshold)
	v.SetDefault("rules.timezone", defaults.Timezone)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	cfg := readRules(v)
	if err := validateRulesConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticRulesHolder(cfg)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := readRules(v)
		if err := validateRulesConfig(updated); err != nil {
			log.Printf("[rules-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[rules-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RulesConfigHolder) Get() RulesConfig {
	if h == nil {
		return DefaultRulesConfig()
	}
	cfg, ok := h.current.Load().(RulesConfig)
	if !ok {
		return DefaultRulesConfig()
	}
	return cfg
}

func readRules(v *viper.Viper) RulesConfig {
	return RulesConfig{
		GracePeriod:        v.GetDuration("rules.gracePeriod"),
		OvertimeThreshold:  v.GetDuration("rules.overtimeThreshold"),
		DedupWindow:        v.GetDuration("rules.dedupWindow"),
		PollBatchSize:      v.GetInt("rules.pollBatchSize"),
		StalenessThreshold: v.GetDuration("rules.stalenessThreshold"),
		Timezone:           strings.TrimSpace(v.GetString("rules.timezone")),
	}
}

func validateRulesConfig(cfg RulesConfig) error {
	if cfg.GracePeriod < 0 {
		return errors.New("rules.gracePeriod cannot be negative")
	}
	if cfg.OvertimeThreshold < 0 {
		return errors.New("rules.overtimeThreshold cannot be negative")
	}
	if cfg.DedupWindow <= 0 {
		return errors.New("rules.dedupWindow must be positive")
	}
	if cfg.PollBatchSize <= 0 {
		return errors.New("rules.pollBatchSize must be positive")
	}
	if cfg.StalenessThreshold <= 0 {
		return errors.New("rules.stalenessThreshold must be positive")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return errors.New("rules.timezone is not a valid IANA zone")
	}
	return nil
}
