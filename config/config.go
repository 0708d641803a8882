// Package config loads store configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the tunables of a store instance. Zero or missing
// values fall back to the defaults.
type Config struct {
	// StoreRoot is the directory tables live under.
	StoreRoot string `yaml:"store_root"`

	Lock struct {
		// Retries bounds lock acquisition attempts.
		Retries int `yaml:"retries"`
		// RetryInterval is the fixed wait between attempts.
		RetryInterval time.Duration `yaml:"retry_interval"`
	} `yaml:"lock"`

	// Workers bounds the mutation executor's per-block fan-out.
	Workers int `yaml:"workers"`

	Compaction struct {
		// MaxDeltaFiles triggers horizontal compaction of a segment once
		// its delta-file count reaches this value.
		MaxDeltaFiles int `yaml:"max_delta_files"`
		// MaxDeltaBytes triggers on aggregate delta size.
		MaxDeltaBytes int64 `yaml:"max_delta_bytes"`
	} `yaml:"compaction"`

	Cleanup struct {
		// RatePerSecond throttles orphan-delta deletions; 0 disables the
		// throttle.
		RatePerSecond float64 `yaml:"rate_per_second"`
	} `yaml:"cleanup"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.StoreRoot = "."
	c.Lock.Retries = 3
	c.Lock.RetryInterval = 100 * time.Millisecond
	c.Workers = 4
	c.Compaction.MaxDeltaFiles = 4
	c.Compaction.MaxDeltaBytes = 64 << 20
	return c
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	c := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return c, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.Lock.Retries < 0 {
		return fmt.Errorf("lock.retries must not be negative")
	}
	if c.Lock.RetryInterval < 0 {
		return fmt.Errorf("lock.retry_interval must not be negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.Cleanup.RatePerSecond < 0 {
		return fmt.Errorf("cleanup.rate_per_second must not be negative")
	}
	return nil
}
