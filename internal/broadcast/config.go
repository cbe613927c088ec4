package broadcast

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the NATS connection used for lifecycle broadcast. An empty
// URL disables broadcasting.
type Config struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
	MaxReconnects int    `toml:"max_reconnects"`
	ReconnectWait string `toml:"reconnect_wait"`
}

// Env names the environment variables that override Config.
type Env struct {
	URL           string
	SubjectPrefix string
}

// Enabled reports whether a NATS URL is configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// ReconnectWaitDuration returns ReconnectWait as a time.Duration.
func (c *Config) ReconnectWaitDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReconnectWait)
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

// Merge applies non-zero values from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.SubjectPrefix != "" {
		c.SubjectPrefix = overlay.SubjectPrefix
	}
	if overlay.MaxReconnects != 0 {
		c.MaxReconnects = overlay.MaxReconnects
	}
	if overlay.ReconnectWait != "" {
		c.ReconnectWait = overlay.ReconnectWait
	}
}

func (c *Config) loadDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultPrefix
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 5
	}
	if c.ReconnectWait == "" {
		c.ReconnectWait = "1s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := os.Getenv(env.URL); env.URL != "" && v != "" {
		c.URL = v
	}
	if v := os.Getenv(env.SubjectPrefix); env.SubjectPrefix != "" && v != "" {
		c.SubjectPrefix = v
	}
}

func (c *Config) validate() error {
	if strings.ContainsAny(c.SubjectPrefix, " *>") || strings.HasSuffix(c.SubjectPrefix, ".") {
		return fmt.Errorf("invalid subject_prefix %q", c.SubjectPrefix)
	}
	if _, err := time.ParseDuration(c.ReconnectWait); err != nil {
		return fmt.Errorf("invalid reconnect_wait: %w", err)
	}
	return nil
}
