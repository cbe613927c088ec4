package cache

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds Redis connection parameters. An empty Addr disables caching.
type Config struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
	TTL       string `toml:"ttl"`
	Timeout   string `toml:"timeout"`
}

// Env names the environment variables that override Config.
type Env struct {
	Addr      string
	Password  string
	DB        string
	KeyPrefix string
	TTL       string
}

// Enabled reports whether a Redis address is configured.
func (c *Config) Enabled() bool {
	return c.Addr != ""
}

// TTLDuration returns TTL as a time.Duration.
func (c *Config) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
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
	if overlay.Addr != "" {
		c.Addr = overlay.Addr
	}
	if overlay.Password != "" {
		c.Password = overlay.Password
	}
	if overlay.DB != 0 {
		c.DB = overlay.DB
	}
	if overlay.KeyPrefix != "" {
		c.KeyPrefix = overlay.KeyPrefix
	}
	if overlay.TTL != "" {
		c.TTL = overlay.TTL
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *Config) loadDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "tenet:"
	}
	if c.TTL == "" {
		c.TTL = "5m"
	}
	if c.Timeout == "" {
		c.Timeout = "3s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := lookup(env.Addr); v != "" {
		c.Addr = v
	}
	if v := lookup(env.Password); v != "" {
		c.Password = v
	}
	if v := lookup(env.DB); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DB = n
		}
	}
	if v := lookup(env.KeyPrefix); v != "" {
		c.KeyPrefix = v
	}
	if v := lookup(env.TTL); v != "" {
		c.TTL = v
	}
}

func (c *Config) validate() error {
	if c.DB < 0 {
		return fmt.Errorf("invalid db: %d", c.DB)
	}
	if d, err := time.ParseDuration(c.TTL); err != nil || d <= 0 {
		return fmt.Errorf("invalid ttl: %q", c.TTL)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
