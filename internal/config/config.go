// Package config holds the externally configurable surface of the Crewd
// daemon: coordination timings and the verification policy. Everything here
// can be changed in the YAML file without a code change.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrPolicyConfig indicates an invalid verification policy. It is fatal at
// startup, before any task processing begins.
var ErrPolicyConfig = errors.New("invalid verification policy")

// CheckConfig declares one weighted verification check. Weight and
// criticality live here, external to the probe itself.
type CheckConfig struct {
	Name     string  `yaml:"name"`
	Weight   float64 `yaml:"weight"`
	Critical bool    `yaml:"critical"`
}

// PolicyConfig is the static verification policy.
type PolicyConfig struct {
	Checks              []CheckConfig `yaml:"checks"`
	AutoCommitThreshold float64       `yaml:"auto_commit_threshold"`
	ReviewThreshold     float64       `yaml:"review_threshold"`
	MaxRetries          int           `yaml:"max_retries"`
	BackoffBaseSeconds  int           `yaml:"backoff_base_seconds"`
	BackoffMultiplier   float64       `yaml:"backoff_multiplier"`
	TransientCategories []string      `yaml:"transient_categories"`
}

// Config is the full daemon configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`

	LeaseTTLSeconds          int `yaml:"lease_ttl_seconds"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	UnresponsiveAfterSeconds int `yaml:"unresponsive_after_seconds"`
	PollIntervalSeconds      int `yaml:"poll_interval_seconds"`
	SweepIntervalSeconds     int `yaml:"sweep_interval_seconds"`

	QueueDepthMin int `yaml:"queue_depth_min"`
	QueueDepthMax int `yaml:"queue_depth_max"`

	Policy PolicyConfig `yaml:"policy"`
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		ListenAddr:               "127.0.0.1:7611",
		DBPath:                   "",
		LogLevel:                 "info",
		LeaseTTLSeconds:          300,
		HeartbeatIntervalSeconds: 30,
		UnresponsiveAfterSeconds: 60,
		PollIntervalSeconds:      1,
		SweepIntervalSeconds:     5,
		QueueDepthMin:            3,
		QueueDepthMax:            5,
		Policy:                   DefaultPolicy(),
	}
}

// DefaultPolicy returns the reference check set and thresholds.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		Checks: []CheckConfig{
			{Name: "file_existence", Weight: 0.20},
			{Name: "code_imports", Weight: 0.15},
			{Name: "unit_tests", Weight: 0.20, Critical: true},
			{Name: "integration_tests", Weight: 0.15},
			{Name: "linting", Weight: 0.10},
			{Name: "type_checking", Weight: 0.10},
			{Name: "documentation", Weight: 0.05},
			{Name: "git_state", Weight: 0.05},
		},
		AutoCommitThreshold: 0.85,
		ReviewThreshold:     0.60,
		MaxRetries:          2,
		BackoffBaseSeconds:  30,
		BackoffMultiplier:   2.0,
		TransientCategories: []string{
			"network_timeout",
			"rate_limit",
			"lock_contention",
			"temporarily_unavailable",
		},
	}
}

// Load reads the config file at path, applying defaults for unset fields.
// A missing file returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the policy invariants. Weight-sum violations are fatal by
// design: a policy whose active weights do not sum to 1.0 cannot produce a
// meaningful confidence score.
func (c *Config) Validate() error {
	if len(c.Policy.Checks) == 0 {
		return fmt.Errorf("%w: no checks configured", ErrPolicyConfig)
	}
	var sum float64
	seen := make(map[string]bool, len(c.Policy.Checks))
	for _, check := range c.Policy.Checks {
		if check.Name == "" {
			return fmt.Errorf("%w: check with empty name", ErrPolicyConfig)
		}
		if seen[check.Name] {
			return fmt.Errorf("%w: duplicate check %q", ErrPolicyConfig, check.Name)
		}
		seen[check.Name] = true
		if check.Weight <= 0 || check.Weight > 1 {
			return fmt.Errorf("%w: check %q weight %v outside (0,1]", ErrPolicyConfig, check.Name, check.Weight)
		}
		sum += check.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("%w: check weights sum to %v, want 1.0", ErrPolicyConfig, sum)
	}
	if c.Policy.AutoCommitThreshold <= c.Policy.ReviewThreshold {
		return fmt.Errorf("%w: auto_commit_threshold %v must exceed review_threshold %v",
			ErrPolicyConfig, c.Policy.AutoCommitThreshold, c.Policy.ReviewThreshold)
	}
	if c.Policy.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrPolicyConfig)
	}
	if c.Policy.BackoffBaseSeconds <= 0 {
		return fmt.Errorf("%w: backoff_base_seconds must be > 0", ErrPolicyConfig)
	}
	if c.Policy.BackoffMultiplier < 1 {
		return fmt.Errorf("%w: backoff_multiplier must be >= 1", ErrPolicyConfig)
	}
	if c.QueueDepthMin <= 0 || c.QueueDepthMax < c.QueueDepthMin {
		return fmt.Errorf("%w: queue depth target %d-%d invalid", ErrPolicyConfig, c.QueueDepthMin, c.QueueDepthMax)
	}
	return nil
}

// LeaseTTL returns the lease duration.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// HeartbeatInterval returns the expected heartbeat push interval.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// UnresponsiveAfter returns the liveness threshold. Zero in the file means
// twice the heartbeat interval.
func (c *Config) UnresponsiveAfter() time.Duration {
	if c.UnresponsiveAfterSeconds > 0 {
		return time.Duration(c.UnresponsiveAfterSeconds) * time.Second
	}
	return 2 * c.HeartbeatInterval()
}

// PollInterval returns the worker polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SweepInterval returns the lease expiry sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// Backoff returns the retry delay before attempt n (1-based): base for the
// first retry, base×multiplier for the second, and so on.
func (p PolicyConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BackoffBaseSeconds) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	return time.Duration(delay * float64(time.Second))
}

// Transient reports whether a failure category is retryable.
func (p PolicyConfig) Transient(category string) bool {
	for _, c := range p.TransientCategories {
		if c == category {
			return true
		}
	}
	return false
}
