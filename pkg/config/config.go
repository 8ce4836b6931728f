// Package config provides configuration loading and management for
// fmrirealign. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Realignment parameters
	Realign struct {
		// WithinLoops is the number of correction sweeps inside each run
		WithinLoops int `yaml:"withinLoops"`

		// BetweenLoops is the number of sweeps aligning run-mean images
		BetweenLoops int `yaml:"betweenLoops"`

		// Speedup is the voxel mask subsampling stride
		Speedup int `yaml:"speedup"`

		// Optimizer selects the minimizer: simplex, powell or conjugate-gradient
		Optimizer string `yaml:"optimizer"`

		// Verbose controls per-scan progress reporting
		Verbose bool `yaml:"verbose"`
	} `yaml:"realign"`

	// Acquisition timing parameters, shared by all runs
	Acquisition struct {
		// TR is the inter-scan repetition time in seconds
		TR float64 `yaml:"tr"`

		// TRSlices is the inter-slice repetition time; -1 selects TR/nslices
		TRSlices float64 `yaml:"trSlices"`

		// Start is the acquisition start offset in seconds
		Start float64 `yaml:"start"`

		// SliceOrder is "ascending" or "descending"
		SliceOrder string `yaml:"sliceOrder"`

		// Interleaved alternates the two halves of the slice stack
		Interleaved bool `yaml:"interleaved"`

		// ReversedSlices marks slice 0 as the top of the head
		ReversedSlices bool `yaml:"reversedSlices"`
	} `yaml:"acquisition"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default realignment parameters
	cfg.Realign.WithinLoops = 2
	cfg.Realign.BetweenLoops = 5
	cfg.Realign.Speedup = 4
	cfg.Realign.Optimizer = "powell"
	cfg.Realign.Verbose = true

	// Set default acquisition parameters
	cfg.Acquisition.TR = 2.0
	cfg.Acquisition.TRSlices = -1
	cfg.Acquisition.Start = 0.0
	cfg.Acquisition.SliceOrder = "ascending"
	cfg.Acquisition.Interleaved = false
	cfg.Acquisition.ReversedSlices = false

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
