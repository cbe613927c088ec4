package pagination

import (
	"fmt"
	"os"
	"strconv"
)

// Config bounds the page sizes callers may request.
type Config struct {
	DefaultPageSize int `toml:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size"`
}

// ConfigEnv names the environment variables that override Config.
type ConfigEnv struct {
	DefaultPageSize string
	MaxPageSize     string
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge applies non-zero values from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.DefaultPageSize != 0 {
		c.DefaultPageSize = overlay.DefaultPageSize
	}
	if overlay.MaxPageSize != 0 {
		c.MaxPageSize = overlay.MaxPageSize
	}
}

func (c *Config) loadDefaults() {
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 25
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = 200
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	if n, ok := envInt(env.DefaultPageSize); ok {
		c.DefaultPageSize = n
	}
	if n, ok := envInt(env.MaxPageSize); ok {
		c.MaxPageSize = n
	}
}

func (c *Config) validate() error {
	if c.DefaultPageSize < 1 {
		return fmt.Errorf("default_page_size must be positive")
	}
	if c.MaxPageSize < 1 {
		return fmt.Errorf("max_page_size must be positive")
	}
	if c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("default_page_size cannot exceed max_page_size")
	}
	return nil
}

func envInt(name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
