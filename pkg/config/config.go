// Package config provides configuration loading and management for volfusion.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"volfusion/pkg/fusion"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// TargetSpacing is the isotropic voxel size volumes are resampled to, in mm
		TargetSpacing float64 `yaml:"targetSpacing"`

		// MovingOpacity weights the aligned moving volume in the fusion overview
		MovingOpacity float64 `yaml:"movingOpacity"`

		// NumCores specifies how many goroutines a single resampling stage may use
		NumCores int `yaml:"numCores"`

		// NumWorkers bounds how many load/fusion tasks run at the same time
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Display parameters
	Display struct {
		// InitialWindow and InitialLevel are applied when a volume is loaded
		InitialWindow float64 `yaml:"initialWindow"`
		InitialLevel  float64 `yaml:"initialLevel"`

		// PlaceholderWindow and PlaceholderLevel are used before anything is loaded
		PlaceholderWindow float64 `yaml:"placeholderWindow"`
		PlaceholderLevel  float64 `yaml:"placeholderLevel"`

		// SliceCacheMB sizes the extracted slice cache; 0 disables it
		SliceCacheMB int `yaml:"sliceCacheMB"`
	} `yaml:"display"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFile sends log lines to a rotating file instead of stdout
		LogFile string `yaml:"logFile"`

		// LogMaxSizeMB and LogMaxAgeDays control log rotation
		LogMaxSizeMB  int `yaml:"logMaxSizeMB"`
		LogMaxAgeDays int `yaml:"logMaxAgeDays"`

		// SnapshotDir is where rendered views are written
		SnapshotDir string `yaml:"snapshotDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.TargetSpacing = 1.0
	cfg.Processing.MovingOpacity = fusion.DefaultMovingOpacity
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.NumWorkers = 2

	cfg.Display.InitialWindow = 2000
	cfg.Display.InitialLevel = 40
	cfg.Display.PlaceholderWindow = 255
	cfg.Display.PlaceholderLevel = 127
	cfg.Display.SliceCacheMB = 128

	cfg.Output.Verbose = false
	cfg.Output.LogMaxSizeMB = 10
	cfg.Output.LogMaxAgeDays = 7
	cfg.Output.SnapshotDir = "snapshots"

	return cfg
}

// Validate rejects values the engine cannot run with. Opacity is never clamped.
func (c *Config) Validate() error {
	if err := fusion.ValidateOpacity(c.Processing.MovingOpacity); err != nil {
		return err
	}
	if !(c.Processing.TargetSpacing > 0) || math.IsInf(c.Processing.TargetSpacing, 0) {
		return fmt.Errorf("target spacing must be positive, got %v", c.Processing.TargetSpacing)
	}
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("numWorkers must be at least 1, got %d", c.Processing.NumWorkers)
	}
	if c.Display.InitialWindow <= 0 || c.Display.PlaceholderWindow <= 0 {
		return fmt.Errorf("window widths must be positive")
	}
	if c.Display.SliceCacheMB < 0 {
		return fmt.Errorf("sliceCacheMB must not be negative, got %d", c.Display.SliceCacheMB)
	}
	return nil
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
