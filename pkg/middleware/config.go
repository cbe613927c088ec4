package middleware

import (
	"os"
	"strconv"
	"strings"
)

// CORSConfig holds the cross-origin policy of the HTTP API.
type CORSConfig struct {
	Enabled          bool     `toml:"enabled"`
	Origins          []string `toml:"origins"`
	AllowedMethods   []string `toml:"allowed_methods"`
	AllowedHeaders   []string `toml:"allowed_headers"`
	AllowCredentials bool     `toml:"allow_credentials"`
	MaxAge           int      `toml:"max_age"`
}

// CORSEnv names the environment variables that override CORSConfig. List
// values are comma separated.
type CORSEnv struct {
	Enabled          string
	Origins          string
	AllowedMethods   string
	AllowedHeaders   string
	AllowCredentials string
	MaxAge           string
}

// Finalize applies defaults and environment overrides.
func (c *CORSConfig) Finalize(env *CORSEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *CORSConfig) Merge(overlay *CORSConfig) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.AllowCredentials {
		c.AllowCredentials = true
	}

	if overlay.Origins != nil {
		c.Origins = overlay.Origins
	}
	if overlay.AllowedMethods != nil {
		c.AllowedMethods = overlay.AllowedMethods
	}
	if overlay.AllowedHeaders != nil {
		c.AllowedHeaders = overlay.AllowedHeaders
	}
	if overlay.MaxAge > 0 {
		c.MaxAge = overlay.MaxAge
	}
}

func (c *CORSConfig) loadDefaults() {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "Authorization"}
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 3600
	}
}

func (c *CORSConfig) loadEnv(env *CORSEnv) {
	if v := lookup(env.Enabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enabled = b
		}
	}
	if v := lookup(env.Origins); v != "" {
		c.Origins = splitList(v)
	}
	if v := lookup(env.AllowedMethods); v != "" {
		c.AllowedMethods = splitList(v)
	}
	if v := lookup(env.AllowedHeaders); v != "" {
		c.AllowedHeaders = splitList(v)
	}
	if v := lookup(env.AllowCredentials); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AllowCredentials = b
		}
	}
	if v := lookup(env.MaxAge); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAge = n
		}
	}
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
