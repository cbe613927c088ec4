package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	EnvHealthMinUsage   = "TENET_HEALTH_MIN_USAGE"
	EnvHealthWindowDays = "TENET_HEALTH_WINDOW_DAYS"
	EnvHealthArchive    = "TENET_HEALTH_ARCHIVE"
)

// HealthConfig holds sweep and correction analysis parameters.
type HealthConfig struct {
	MinUsage   int64 `toml:"min_usage"`
	WindowDays int   `toml:"window_days"`
	Archive    bool  `toml:"archive"`
}

// Finalize applies defaults, environment overrides, and validation.
func (c *HealthConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *HealthConfig) Merge(overlay *HealthConfig) {
	if overlay.MinUsage != 0 {
		c.MinUsage = overlay.MinUsage
	}
	if overlay.WindowDays != 0 {
		c.WindowDays = overlay.WindowDays
	}
	if overlay.Archive {
		c.Archive = true
	}
}

func (c *HealthConfig) loadDefaults() {
	if c.MinUsage == 0 {
		c.MinUsage = 10
	}
	if c.WindowDays == 0 {
		c.WindowDays = 30
	}
}

func (c *HealthConfig) loadEnv() {
	if v := os.Getenv(EnvHealthMinUsage); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MinUsage = n
		}
	}
	if v := os.Getenv(EnvHealthWindowDays); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.WindowDays = n
		}
	}
	if v := os.Getenv(EnvHealthArchive); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Archive = b
		}
	}
}

func (c *HealthConfig) validate() error {
	if c.MinUsage < 0 {
		return fmt.Errorf("min_usage must not be negative")
	}
	if c.WindowDays < 1 {
		return fmt.Errorf("window_days must be at least 1")
	}
	return nil
}
