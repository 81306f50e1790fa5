// Package harnessconfig is the harness's optional ambient configuration
// layer: proxy and log-store timeouts, fan-out concurrency, the
// continue-on-error default, the metrics listen address, and logging
// level/format, loaded from an optional YAML file with environment
// variable expansion.
package harnessconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the harness's full ambient configuration.
type Config struct {
	Proxy     ProxyConfig     `yaml:"proxy"`
	LogStore  LogStoreConfig  `yaml:"log_store"`
	Execution ExecutionConfig `yaml:"execution"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Report    ReportConfig    `yaml:"report"`
}

// ProxyConfig controls calls to the fault-injection proxy control plane.
type ProxyConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogStoreConfig controls calls to the log store search endpoint.
type LogStoreConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ExecutionConfig controls recipe-run behavior.
type ExecutionConfig struct {
	ConcurrencyLimit int  `yaml:"concurrency_limit"`
	ContinueOnError  bool `yaml:"continue_on_error"`
}

// LoggingConfig controls pkg/telemetry's logger construction.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus exposition listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ReportConfig controls whether a run's results are persisted to disk.
type ReportConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	KeepLastN int    `yaml:"keep_last_n"`
}

// DefaultConfig returns the configuration the harness runs with when no
// config file is given.
func DefaultConfig() *Config {
	return &Config{
		Proxy:    ProxyConfig{Timeout: 10 * time.Second},
		LogStore: LogStoreConfig{Timeout: 10 * time.Second},
		Execution: ExecutionConfig{
			ConcurrencyLimit: 8,
			ContinueOnError:  false,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Listen: ":9090"},
		Report:  ReportConfig{Enabled: false, OutputDir: "./reports", KeepLastN: 20},
	}
}

// Load reads configuration from a YAML file at path, falling back to
// DefaultConfig if the file does not exist. Environment variables in the
// file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harnessconfig: read %s: %w", path, err)
	}

	expanded := []byte(os.ExpandEnv(string(data)))
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("harnessconfig: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects configuration values that would make the harness
// silently misbehave.
func (c *Config) Validate() error {
	if c.Proxy.Timeout <= 0 {
		return fmt.Errorf("harnessconfig: proxy.timeout must be positive")
	}
	if c.LogStore.Timeout <= 0 {
		return fmt.Errorf("harnessconfig: log_store.timeout must be positive")
	}
	if c.Execution.ConcurrencyLimit < 1 {
		return fmt.Errorf("harnessconfig: execution.concurrency_limit must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("harnessconfig: logging.level %q is not one of debug/info/warn/error", c.Logging.Level)
	}
	return nil
}
