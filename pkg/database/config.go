package database

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds PostgreSQL connection parameters. When URL is set it wins
// over the discrete host/port/name fields.
type Config struct {
	URL             string `toml:"url"`
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	Name            string `toml:"name"`
	User            string `toml:"user"`
	Password        string `toml:"password"`
	SSLMode         string `toml:"ssl_mode"`
	MaxOpenConns    int    `toml:"max_open_conns"`
	MaxIdleConns    int    `toml:"max_idle_conns"`
	ConnMaxLifetime string `toml:"conn_max_lifetime"`
	ConnTimeout     string `toml:"conn_timeout"`
}

// Env names the environment variables that override Config.
type Env struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    string
	MaxIdleConns    string
	ConnMaxLifetime string
	ConnTimeout     string
}

// ConnMaxLifetimeDuration returns ConnMaxLifetime as a time.Duration.
func (c *Config) ConnMaxLifetimeDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnMaxLifetime)
	return d
}

// ConnTimeoutDuration returns ConnTimeout as a time.Duration.
func (c *Config) ConnTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnTimeout)
	return d
}

// Dsn returns a postgres:// connection URL usable by both the pgx driver
// and golang-migrate.
func (c *Config) Dsn() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
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
	mergeString(&c.URL, overlay.URL)
	mergeString(&c.Host, overlay.Host)
	mergeString(&c.Name, overlay.Name)
	mergeString(&c.User, overlay.User)
	mergeString(&c.Password, overlay.Password)
	mergeString(&c.SSLMode, overlay.SSLMode)
	mergeString(&c.ConnMaxLifetime, overlay.ConnMaxLifetime)
	mergeString(&c.ConnTimeout, overlay.ConnTimeout)

	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	if overlay.MaxOpenConns != 0 {
		c.MaxOpenConns = overlay.MaxOpenConns
	}
	if overlay.MaxIdleConns != 0 {
		c.MaxIdleConns = overlay.MaxIdleConns
	}
}

func (c *Config) loadDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "15m"
	}
	if c.ConnTimeout == "" {
		c.ConnTimeout = "5s"
	}
}

func (c *Config) loadEnv(env *Env) {
	envString(&c.URL, env.URL)
	envString(&c.Host, env.Host)
	envString(&c.Name, env.Name)
	envString(&c.User, env.User)
	envString(&c.Password, env.Password)
	envString(&c.SSLMode, env.SSLMode)
	envString(&c.ConnMaxLifetime, env.ConnMaxLifetime)
	envString(&c.ConnTimeout, env.ConnTimeout)
	envInt(&c.Port, env.Port)
	envInt(&c.MaxOpenConns, env.MaxOpenConns)
	envInt(&c.MaxIdleConns, env.MaxIdleConns)
}

func (c *Config) validate() error {
	if c.URL == "" {
		if c.Name == "" {
			return fmt.Errorf("name required")
		}
		if c.User == "" {
			return fmt.Errorf("user required")
		}
	}
	if _, err := time.ParseDuration(c.ConnMaxLifetime); err != nil {
		return fmt.Errorf("invalid conn_max_lifetime: %w", err)
	}
	if _, err := time.ParseDuration(c.ConnTimeout); err != nil {
		return fmt.Errorf("invalid conn_timeout: %w", err)
	}
	return nil
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envString(dst *string, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(dst *int, name string) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
