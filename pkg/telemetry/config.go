package telemetry

import (
	"fmt"
	"os"
	"strconv"
)

// Exporters accepted by Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects where spans are exported.
type Config struct {
	Exporter    string  `toml:"exporter"`
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// Env names the environment variables that override Config.
type Env struct {
	Exporter    string
	Endpoint    string
	Insecure    string
	SampleRatio string
}

// Enabled reports whether spans leave the process.
func (c *Config) Enabled() bool {
	return c.Exporter != ExporterNone
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
	if overlay.Exporter != "" {
		c.Exporter = overlay.Exporter
	}
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.Insecure {
		c.Insecure = true
	}
	if overlay.SampleRatio != 0 {
		c.SampleRatio = overlay.SampleRatio
	}
}

func (c *Config) loadDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterNone
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1
	}
}

func (c *Config) loadEnv(env *Env) {
	if v := lookup(env.Exporter); v != "" {
		c.Exporter = v
	}
	if v := lookup(env.Endpoint); v != "" {
		c.Endpoint = v
	}
	if v := lookup(env.Insecure); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Insecure = b
		}
	}
	if v := lookup(env.SampleRatio); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SampleRatio = f
		}
	}
}

func (c *Config) validate() error {
	switch c.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownExporter, c.Exporter)
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("invalid sample_ratio: %v", c.SampleRatio)
	}
	return nil
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
