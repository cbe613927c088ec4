package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/JaimeStill/tenet/pkg/formatting"
	"github.com/JaimeStill/tenet/pkg/middleware"
)

const (
	EnvServerHost            = "TENET_SERVER_HOST"
	EnvServerPort            = "TENET_SERVER_PORT"
	EnvServerReadTimeout     = "TENET_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "TENET_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout = "TENET_SERVER_SHUTDOWN_TIMEOUT"
	EnvServerSweepInterval   = "TENET_SERVER_SWEEP_INTERVAL"
	EnvServerMaxBodySize     = "TENET_SERVER_MAX_BODY_SIZE"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "TENET_CORS_ENABLED",
	Origins:          "TENET_CORS_ORIGINS",
	AllowedMethods:   "TENET_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "TENET_CORS_ALLOWED_HEADERS",
	AllowCredentials: "TENET_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "TENET_CORS_MAX_AGE",
}

// ServerConfig holds the parameters of tenet serve. An empty
// SweepInterval disables the scheduled health sweep.
type ServerConfig struct {
	Host            string                `toml:"host"`
	Port            int                   `toml:"port"`
	ReadTimeout     string                `toml:"read_timeout"`
	WriteTimeout    string                `toml:"write_timeout"`
	ShutdownTimeout string                `toml:"shutdown_timeout"`
	SweepInterval   string                `toml:"sweep_interval"`
	MaxBodySize     string                `toml:"max_body_size"`
	CORS            middleware.CORSConfig `toml:"cors"`
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	return d
}

func (c *ServerConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}

func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// SweepIntervalDuration returns zero when the scheduled sweep is disabled.
func (c *ServerConfig) SweepIntervalDuration() time.Duration {
	if c.SweepInterval == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.SweepInterval)
	return d
}

// MaxBodyBytes returns MaxBodySize in bytes.
func (c *ServerConfig) MaxBodyBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxBodySize)
	return n
}

// Finalize applies defaults, environment overrides, and validation.
func (c *ServerConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	if overlay.Host != "" {
		c.Host = overlay.Host
	}
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	if overlay.ReadTimeout != "" {
		c.ReadTimeout = overlay.ReadTimeout
	}
	if overlay.WriteTimeout != "" {
		c.WriteTimeout = overlay.WriteTimeout
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.SweepInterval != "" {
		c.SweepInterval = overlay.SweepInterval
	}
	if overlay.MaxBodySize != "" {
		c.MaxBodySize = overlay.MaxBodySize
	}
	c.CORS.Merge(&overlay.CORS)
}

func (c *ServerConfig) loadDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "30s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "2m"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "1MB"
	}
}

func (c *ServerConfig) loadEnv() {
	if v := os.Getenv(EnvServerHost); v != "" {
		c.Host = v
	}
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv(EnvServerReadTimeout); v != "" {
		c.ReadTimeout = v
	}
	if v := os.Getenv(EnvServerWriteTimeout); v != "" {
		c.WriteTimeout = v
	}
	if v := os.Getenv(EnvServerShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvServerSweepInterval); v != "" {
		c.SweepInterval = v
	}
	if v := os.Getenv(EnvServerMaxBodySize); v != "" {
		c.MaxBodySize = v
	}
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, v := range map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if n, err := formatting.ParseBytes(c.MaxBodySize); err != nil {
		return fmt.Errorf("invalid max_body_size: %w", err)
	} else if n < 1 {
		return fmt.Errorf("max_body_size must be positive")
	}
	if c.SweepInterval != "" {
		d, err := time.ParseDuration(c.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval: %w", err)
		}
		if d < time.Minute {
			return fmt.Errorf("sweep_interval must be at least 1m, got %s", d)
		}
	}
	return nil
}
