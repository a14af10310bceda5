// Package config loads tally settings from a YAML file and the environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, TALLY_*
// environment variables, command-line flags (applied by the cli package).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/aggregate"
)

// EnvPrefix is the prefix of every environment override, e.g.
// TALLY_DATABASE_PATH.
const EnvPrefix = "tally"

const DefaultShutdownTimeout = "10s"

// Config holds every tally setting.
type Config struct {
	DatabasePath    string `yaml:"databasePath"    split_words:"true"`
	RegistryDir     string `yaml:"registryDir"     split_words:"true"`
	ContractsFile   string `yaml:"contractsFile"   split_words:"true"`
	ListenAddr      string `yaml:"listenAddr"      split_words:"true"`
	LogLevel        string `yaml:"logLevel"        split_words:"true"`
	DuplicatePolicy string `yaml:"duplicatePolicy" split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
}

// Default returns the built-in configuration. An empty RegistryDir keeps
// the DID registry in memory.
func Default() *Config {
	return &Config{
		DatabasePath:    "tally.db",
		RegistryDir:     "",
		ContractsFile:   "contracts.yaml",
		ListenAddr:      "127.0.0.1:8080",
		LogLevel:        "info",
		DuplicatePolicy: "reject",
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load builds a Config from defaults, then configFile if it is non-empty,
// then the environment.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Overlay file values onto the defaults
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated and duration fields.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return fmt.Errorf("invalid duplicatePolicy: %w", err)
	}
	if _, err := c.Shutdown(); err != nil {
		return err
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("databasePath must not be empty")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid logLevel: %q (must be 'debug', 'info', 'warn' or 'error')", c.LogLevel)
}

// Policy parses DuplicatePolicy.
func (c *Config) Policy() (aggregate.DuplicatePolicy, error) {
	return aggregate.ParseDuplicatePolicy(c.DuplicatePolicy)
}

// Shutdown parses ShutdownTimeout.
func (c *Config) Shutdown() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdownTimeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid shutdownTimeout: %s is negative", d)
	}
	return d, nil
}
