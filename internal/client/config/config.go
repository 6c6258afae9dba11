package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/altair/internal/filex"
)

// Config holds runtime settings for the Altair CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - DatabasePath: local SQLite mirror; empty means altair.db in the data dir.
//   - Timezone: IANA zone deciding the civil date energy is charged to.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	DatabasePath        string
	Timezone            string
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = ""
	c.Timezone = "Local"
	c.LogLevel = "warn"
}

// Location resolves Timezone. An empty zone is UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ResolveDatabasePath returns DatabasePath, falling back to the data
// directory. The parent directory is created when missing.
func (c *Config) ResolveDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		if _, err := filex.EnsureDir(filepath.Dir(c.DatabasePath)); err != nil {
			return "", err
		}
		return c.DatabasePath, nil
	}
	dir, err := filex.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "altair.db"), nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
