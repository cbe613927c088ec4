// Package config loads the tenet configuration from TOML files and
// TENET_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/tenet/internal/broadcast"
	"github.com/JaimeStill/tenet/pkg/cache"
	"github.com/JaimeStill/tenet/pkg/database"
	"github.com/JaimeStill/tenet/pkg/pagination"
	"github.com/JaimeStill/tenet/pkg/storage"
	"github.com/JaimeStill/tenet/pkg/telemetry"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTenetEnv      = "TENET_ENV"
	EnvTenetLogLevel = "TENET_LOG_LEVEL"
	EnvTenetVersion  = "TENET_VERSION"
)

var databaseEnv = &database.Env{
	URL:             "TENET_DB_URL",
	Host:            "TENET_DB_HOST",
	Port:            "TENET_DB_PORT",
	Name:            "TENET_DB_NAME",
	User:            "TENET_DB_USER",
	Password:        "TENET_DB_PASSWORD",
	SSLMode:         "TENET_DB_SSL_MODE",
	MaxOpenConns:    "TENET_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TENET_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TENET_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TENET_DB_CONN_TIMEOUT",
}

var cacheEnv = &cache.Env{
	Addr:      "TENET_REDIS_ADDR",
	Password:  "TENET_REDIS_PASSWORD",
	DB:        "TENET_REDIS_DB",
	KeyPrefix: "TENET_REDIS_KEY_PREFIX",
	TTL:       "TENET_REDIS_TTL",
}

var broadcastEnv = &broadcast.Env{
	URL:           "TENET_NATS_URL",
	SubjectPrefix: "TENET_NATS_SUBJECT_PREFIX",
}

var storageEnv = &storage.Env{
	ContainerName:    "TENET_STORAGE_CONTAINER_NAME",
	ConnectionString: "TENET_STORAGE_CONNECTION_STRING",
	MaxListSize:      "TENET_STORAGE_MAX_LIST_SIZE",
}

var telemetryEnv = &telemetry.Env{
	Exporter:    "TENET_TRACE_EXPORTER",
	Endpoint:    "TENET_TRACE_ENDPOINT",
	Insecure:    "TENET_TRACE_INSECURE",
	SampleRatio: "TENET_TRACE_SAMPLE_RATIO",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "TENET_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "TENET_PAGINATION_MAX_PAGE_SIZE",
}

// Config is the root configuration for tenet.
type Config struct {
	Database   database.Config   `toml:"database"`
	Cache      cache.Config      `toml:"cache"`
	Broadcast  broadcast.Config  `toml:"broadcast"`
	Storage    storage.Config    `toml:"storage"`
	Telemetry  telemetry.Config  `toml:"telemetry"`
	Server     ServerConfig      `toml:"server"`
	Health     HealthConfig      `toml:"health"`
	Pagination pagination.Config `toml:"pagination"`
	LogLevel   string            `toml:"log_level"`
	Version    string            `toml:"version"`
}

// Env returns the TENET_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTenetEnv); env != "" {
		return env
	}
	return "local"
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	_ = level.UnmarshalText([]byte(c.LogLevel))
	return level
}

// Load reads path (config.toml when empty) if it exists, applies the
// TENET_ENV overlay next to it, and finalizes all values. Without any file,
// defaults and environment variables provide all configuration.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = BaseConfigFile
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if explicit {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if overlay := overlayPath(path); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Database.Merge(&overlay.Database)
	c.Cache.Merge(&overlay.Cache)
	c.Broadcast.Merge(&overlay.Broadcast)
	c.Storage.Merge(&overlay.Storage)
	c.Telemetry.Merge(&overlay.Telemetry)
	c.Server.Merge(&overlay.Server)
	c.Health.Merge(&overlay.Health)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cache.Finalize(cacheEnv); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.Broadcast.Finalize(broadcastEnv); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Telemetry.Finalize(telemetryEnv); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Health.Finalize(); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvTenetLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvTenetVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// overlayPath returns config.<env>.toml beside base when TENET_ENV is set
// and the file exists.
func overlayPath(base string) string {
	env := os.Getenv(EnvTenetEnv)
	if env == "" {
		return ""
	}

	dir := ""
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		dir = base[:i+1]
	}
	path := dir + fmt.Sprintf(OverlayConfigPattern, env)
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
