// Package config holds the immutable execution parameters for one run.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the bag of execution parameters consumed by the engine.
// It is constructed once per run and read-only thereafter.
type Config struct {
	// FailPercent is the fraction of hosts (0-100) allowed to fail, at
	// connect time or during execution, before the whole run aborts.
	FailPercent int `validate:"min=0,max=100"`

	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration `validate:"gt=0"`

	// CommandTimeout bounds each remote command execution. Exceeding it is
	// treated the same as a nonzero exit.
	CommandTimeout time.Duration `validate:"gt=0"`

	// Parallel bounds the worker pool used for connect-all and per-operation
	// dispatch.
	Parallel int `validate:"gt=0"`

	// Default escalation applied to operations that set none themselves.
	Sudo     bool
	SudoUser string
	SuUser   string

	// StorePath is the SQLite run-history database path. Empty disables
	// persistence.
	StorePath string
}

var validate = validator.New()

// Default returns a Config with sensible defaults: no failure tolerated,
// 10 workers, 30s connect and 5m command timeouts.
func Default() *Config {
	return &Config{
		FailPercent:    0,
		ConnectTimeout: 30 * time.Second,
		CommandTimeout: 5 * time.Minute,
		Parallel:       10,
	}
}

// fileConfig mirrors Config for YAML decoding. Durations are strings in
// time.ParseDuration syntax, and optional fields are pointers so that
// absent keys keep their defaults.
type fileConfig struct {
	FailPercent    *int   `yaml:"fail_percent"`
	ConnectTimeout string `yaml:"connect_timeout"`
	CommandTimeout string `yaml:"command_timeout"`
	Parallel       *int   `yaml:"parallel"`
	Sudo           *bool  `yaml:"sudo"`
	SudoUser       string `yaml:"sudo_user"`
	SuUser         string `yaml:"su_user"`
	StorePath      string `yaml:"store_path"`
}

// Load reads a config file and applies it over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse parses config YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if fc.FailPercent != nil {
		cfg.FailPercent = *fc.FailPercent
	}
	if fc.ConnectTimeout != "" {
		d, err := time.ParseDuration(fc.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if fc.CommandTimeout != "" {
		d, err := time.ParseDuration(fc.CommandTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid command_timeout: %w", err)
		}
		cfg.CommandTimeout = d
	}
	if fc.Parallel != nil {
		cfg.Parallel = *fc.Parallel
	}
	if fc.Sudo != nil {
		cfg.Sudo = *fc.Sudo
	}
	if fc.SudoUser != "" {
		cfg.SudoUser = fc.SudoUser
	}
	if fc.SuUser != "" {
		cfg.SuUser = fc.SuUser
	}
	if fc.StorePath != "" {
		cfg.StorePath = fc.StorePath
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.SudoUser != "" && c.SuUser != "" {
		return fmt.Errorf("invalid config: default sudo_user and su_user are mutually exclusive")
	}
	return nil
}
