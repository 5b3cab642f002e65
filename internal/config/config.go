// Package config defines the qapper configuration file format and loading.
// Configuration is optional; every value has a default and the CLI flags
// override whatever the file provides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/logging"
	"github.com/steeric1/qapper/internal/scanning"
)

// Config represents the complete qapper configuration.
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// ScanningConfig holds scanning-related settings.
type ScanningConfig struct {
	// Per-attempt connection timeout in milliseconds
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms" validate:"gt=0"`

	// Maximum number of connection attempts in flight at once
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"gte=1"`

	// Ping hosts before scanning and skip the silent ones
	Ping bool `yaml:"ping" json:"ping"`

	// Timeout for each liveness ping
	PingTimeout time.Duration `yaml:"ping_timeout" json:"ping_timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			TimeoutMS:   int(scanning.DefaultTimeout / time.Millisecond),
			Concurrency: scanning.DefaultConcurrency,
			Ping:        false,
			PingTimeout: 3 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

var validate = validator.New()

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			"failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			"failed to parse YAML config", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration,
			"invalid configuration", err)
	}
	if c.Scanning.Concurrency > scanning.MaxConcurrency {
		return errors.NewConfigFieldError(errors.CodeConfiguration,
			fmt.Sprintf("concurrency exceeds maximum of %d", scanning.MaxConcurrency),
			"scanning.concurrency", c.Scanning.Concurrency)
	}
	return nil
}

// ScanConfig converts the file settings into an immutable scan
// configuration.
func (c *Config) ScanConfig(verbose bool) scanning.Config {
	return scanning.Config{
		Timeout:     time.Duration(c.Scanning.TimeoutMS) * time.Millisecond,
		Concurrency: c.Scanning.Concurrency,
		Verbose:     verbose,
	}
}
