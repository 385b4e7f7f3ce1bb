// Package config provides configuration loading and management for
// voxelstats. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Analysis parameters for the voxel-wise comparison
	Analysis struct {
		// Alpha is the significance level for the FDR correction
		Alpha float64 `yaml:"alpha"`

		// Suffix selects which files in a folder belong to a group
		Suffix string `yaml:"suffix"`

		// MemoryBudgetMB caps result materialization; 0 disables the check
		MemoryBudgetMB int `yaml:"memoryBudgetMB"`
	} `yaml:"analysis"`

	// Density map generation parameters
	Density struct {
		// Sigma is the Gaussian standard deviation in physical units
		Sigma float64 `yaml:"sigma"`

		// VoxelSize is the physical voxel extent along each axis
		VoxelSize [3]float64 `yaml:"voxelSize"`

		// LowRatio and HighRatio scale Otsu's threshold into the
		// hysteresis thresholds
		LowRatio  float64 `yaml:"lowRatio"`
		HighRatio float64 `yaml:"highRatio"`
	} `yaml:"density"`

	// Batch driver parameters
	Batch struct {
		// StorePath is the durable job-status store file
		StorePath string `yaml:"storePath"`

		// LogPath is the rotated batch log file; empty logs to stdout only
		LogPath string `yaml:"logPath"`

		// CacheDir is the parameter-addressed output cache directory
		CacheDir string `yaml:"cacheDir"`

		// Retry reprocesses units previously recorded as failed
		Retry bool `yaml:"retry"`
	} `yaml:"batch"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Analysis.Alpha = 0.05
	cfg.Analysis.Suffix = "_density_map.nrrd"
	cfg.Analysis.MemoryBudgetMB = 0

	cfg.Density.Sigma = 2.5
	cfg.Density.VoxelSize = [3]float64{0.2, 0.2, 0.5}
	cfg.Density.LowRatio = 0.3
	cfg.Density.HighRatio = 0.8

	cfg.Batch.StorePath = "batch_status.yaml"
	cfg.Batch.LogPath = "batch_processing.log"
	cfg.Batch.CacheDir = ""
	cfg.Batch.Retry = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
