// Package config loads the daemon's tunables from a YAML file, falling back
// to defaults when no file exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JRF63/monitor-brightness-controller/internal/retry"
)

// RetryConfig tunes the per-write retry schedule.
type RetryConfig struct {
	Attempts         int `yaml:"attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms"`
}

// RateLimitConfig tunes the control-surface rate limiter.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Config holds all daemon tunables.
type Config struct {
	MailboxCapacity int             `yaml:"mailbox_capacity"`
	ResetDelayMS    int             `yaml:"reset_delay_ms"`
	Retry           RetryConfig     `yaml:"retry"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MailboxCapacity: 512,
		ResetDelayMS:    5000,
		Retry: RetryConfig{
			Attempts:         5,
			InitialBackoffMS: 10,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 20,
			Burst:     5,
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "monitor-brightness-daemon", "config.yaml"), nil
}

// Load reads the config file at path, layered over the defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every tunable is usable.
func (c Config) Validate() error {
	if c.MailboxCapacity < 1 {
		return fmt.Errorf("mailbox_capacity must be at least 1, got %d", c.MailboxCapacity)
	}
	if c.ResetDelayMS < 0 {
		return fmt.Errorf("reset_delay_ms must not be negative, got %d", c.ResetDelayMS)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}
	if c.Retry.InitialBackoffMS < 0 {
		return fmt.Errorf("retry.initial_backoff_ms must not be negative, got %d", c.Retry.InitialBackoffMS)
	}
	if c.RateLimit.PerSecond <= 0 {
		return fmt.Errorf("rate_limit.per_second must be positive, got %v", c.RateLimit.PerSecond)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1, got %d", c.RateLimit.Burst)
	}
	return nil
}

// ResetDelay returns the wake-to-reset delay as a duration.
func (c Config) ResetDelay() time.Duration {
	return time.Duration(c.ResetDelayMS) * time.Millisecond
}

// Policy returns the retry schedule as a retry.Policy.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Attempts: c.Attempts,
		Initial:  time.Duration(c.InitialBackoffMS) * time.Millisecond,
	}
}
