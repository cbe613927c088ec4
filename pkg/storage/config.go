package storage

import (
	"fmt"
	"os"
	"strconv"
)

// MaxListCap bounds a single List page.
const MaxListCap int32 = 5000

// Config holds Azure Blob Storage parameters. An empty ConnectionString
// disables storage.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	MaxListSize      int32  `toml:"max_list_size"`
}

// Env names the environment variables that override Config.
type Env struct {
	ContainerName    string
	ConnectionString string
	MaxListSize      string
}

// Enabled reports whether a connection string is configured.
func (c *Config) Enabled() bool {
	return c.ConnectionString != ""
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.MaxListSize != 0 {
		c.MaxListSize = overlay.MaxListSize
	}
}

func (c *Config) loadDefaults() {
	if c.ContainerName == "" {
		c.ContainerName = "health-reports"
	}
	if c.MaxListSize <= 0 {
		c.MaxListSize = 500
	}
	c.MaxListSize = min(c.MaxListSize, MaxListCap)
}

func (c *Config) loadEnv(env *Env) {
	if env.ContainerName != "" {
		if v := os.Getenv(env.ContainerName); v != "" {
			c.ContainerName = v
		}
	}
	if env.ConnectionString != "" {
		if v := os.Getenv(env.ConnectionString); v != "" {
			c.ConnectionString = v
		}
	}
	if env.MaxListSize != "" {
		if v := os.Getenv(env.MaxListSize); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.MaxListSize = min(int32(n), MaxListCap)
			}
		}
	}
}

func (c *Config) validate() error {
	if c.ContainerName == "" {
		return fmt.Errorf("container_name required")
	}
	return nil
}
