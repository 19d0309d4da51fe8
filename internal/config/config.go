// Package config loads stencil configuration: every tunable constant the
// extraction contract depends on lives here, explicitly, instead of being a
// magic number inside a component.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all stencil settings.
type Config struct {
	Calibration CalibrationCfg `mapstructure:"calibration" yaml:"calibration"`
	Detector    DetectorCfg    `mapstructure:"detector" yaml:"detector"`
	Assemble    AssembleCfg    `mapstructure:"assemble" yaml:"assemble"`
	Backend     BackendCfg     `mapstructure:"backend" yaml:"backend"`
}

// CalibrationCfg controls template calibration.
type CalibrationCfg struct {
	// DPI used to rasterize the master template. Persisted into the mapping
	// and reused verbatim by every extraction run.
	DPI int `mapstructure:"dpi" yaml:"dpi"`
}

// DetectorCfg controls marker color matching.
type DetectorCfg struct {
	// ColorTolerance is the per-channel distance (0-255) a pixel may be from
	// the legend color and still match. Absorbs anti-aliasing.
	ColorTolerance int `mapstructure:"color_tolerance" yaml:"color_tolerance"`
	// MinComponentPixels discards matched components smaller than this.
	MinComponentPixels int `mapstructure:"min_component_pixels" yaml:"min_component_pixels"`
}

// AssembleCfg controls field normalization.
type AssembleCfg struct {
	// RowTolerance is the vertical distance in pixels (at calibration DPI)
	// within which lines across table columns belong to the same row.
	RowTolerance float64 `mapstructure:"row_tolerance" yaml:"row_tolerance"`
	// DateLayouts is the ordered list of accepted Go date layouts for
	// scalar-date fields. First successful parse wins.
	DateLayouts []string `mapstructure:"date_layouts" yaml:"date_layouts"`
}

// BackendCfg configures the text-recognition backend.
type BackendCfg struct {
	// URL of the recognition service.
	URL string `mapstructure:"url" yaml:"url"`
	// Timeout per recognition request.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// PoolSize is the number of backend instances extraction may use at once.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size"`
	// AcquireTimeout bounds how long a request waits for a free backend slot.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
}

// DefaultConfig returns the documented defaults. The detector and row
// tolerances are deliberate configuration values exercised by the boundary
// tests, not tuned heuristics.
func DefaultConfig() *Config {
	return &Config{
		Calibration: CalibrationCfg{
			DPI: 200,
		},
		Detector: DetectorCfg{
			ColorTolerance:     8,
			MinComponentPixels: 16,
		},
		Assemble: AssembleCfg{
			RowTolerance: 10,
			DateLayouts:  []string{"2006-01-02", "02-01-2006", "02/01/2006"},
		},
		Backend: BackendCfg{
			URL:            "http://localhost:8000",
			Timeout:        60 * time.Second,
			PoolSize:       1,
			AcquireTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration from the optional file plus STENCIL_* environment
// variables, layered over defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("calibration.dpi", defaults.Calibration.DPI)
	v.SetDefault("detector.color_tolerance", defaults.Detector.ColorTolerance)
	v.SetDefault("detector.min_component_pixels", defaults.Detector.MinComponentPixels)
	v.SetDefault("assemble.row_tolerance", defaults.Assemble.RowTolerance)
	v.SetDefault("assemble.date_layouts", defaults.Assemble.DateLayouts)
	v.SetDefault("backend.url", defaults.Backend.URL)
	v.SetDefault("backend.timeout", defaults.Backend.Timeout)
	v.SetDefault("backend.pool_size", defaults.Backend.PoolSize)
	v.SetDefault("backend.acquire_timeout", defaults.Backend.AcquireTimeout)

	v.SetEnvPrefix("STENCIL")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("stencil")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.stencil")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot honor.
func (c *Config) Validate() error {
	if c.Calibration.DPI <= 0 {
		return fmt.Errorf("calibration.dpi must be positive, got %d", c.Calibration.DPI)
	}
	if c.Detector.ColorTolerance < 0 || c.Detector.ColorTolerance > 255 {
		return fmt.Errorf("detector.color_tolerance must be in [0,255], got %d", c.Detector.ColorTolerance)
	}
	if c.Detector.MinComponentPixels < 1 {
		return fmt.Errorf("detector.min_component_pixels must be at least 1, got %d", c.Detector.MinComponentPixels)
	}
	if c.Assemble.RowTolerance <= 0 {
		return fmt.Errorf("assemble.row_tolerance must be positive, got %v", c.Assemble.RowTolerance)
	}
	if len(c.Assemble.DateLayouts) == 0 {
		return errors.New("assemble.date_layouts must list at least one layout")
	}
	if c.Backend.URL == "" {
		return errors.New("backend.url is required")
	}
	if c.Backend.PoolSize < 1 {
		return fmt.Errorf("backend.pool_size must be at least 1, got %d", c.Backend.PoolSize)
	}
	return nil
}
