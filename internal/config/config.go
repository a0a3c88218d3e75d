// Package config loads daemon settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds catalog, ingestion and API settings.
type Config struct {
	// Paths
	DBPath   string // sqlite catalog, e.g. /var/lib/opentv/catalog.db
	CacheDir string // temp downloads (remote M3U copies)

	// API server
	Listen string // e.g. :8181

	// Ingestion
	HTTPTimeout            time.Duration // per-request timeout for upstream fetches
	DownloadTimeout        time.Duration // full remote-M3U download budget
	StalkerPageConcurrency int64         // max concurrent Stalker page fetches
	StalkerPageRate        float64       // page requests per second (0 = unlimited)

	// Logging
	LogConsole bool
}

// Load reads config from environment with defaults suitable for a local daemon.
func Load() *Config {
	c := &Config{
		DBPath:                 getEnv("OPENTV_DB", "./opentv.db"),
		CacheDir:               getEnv("OPENTV_CACHE_DIR", os.TempDir()),
		Listen:                 getEnv("OPENTV_LISTEN", ":8181"),
		HTTPTimeout:            getEnvDuration("OPENTV_HTTP_TIMEOUT", 90*time.Second),
		DownloadTimeout:        getEnvDuration("OPENTV_DOWNLOAD_TIMEOUT", 10*time.Minute),
		StalkerPageConcurrency: int64(getEnvInt("OPENTV_STALKER_PAGE_CONCURRENCY", 8)),
		StalkerPageRate:        getEnvFloat("OPENTV_STALKER_PAGE_RATE", 0),
		LogConsole:             getEnvBool("OPENTV_LOG_CONSOLE", false),
	}
	if c.StalkerPageConcurrency < 1 {
		c.StalkerPageConcurrency = 1
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 90 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 10 * time.Minute
	}
	return c
}

// Validate checks that configured paths are usable before the daemon starts.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: OPENTV_DB must not be empty")
	}
	if dir := filepath.Dir(c.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create db dir: %w", err)
		}
	}
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return fmt.Errorf("config: create cache dir: %w", err)
	}
	return nil
}

// M3UTempPath is where a remote playlist is materialized before parsing.
// Overwritten on each refresh of that source.
func (c *Config) M3UTempPath(sourceID int64) string {
	return filepath.Join(c.CacheDir, fmt.Sprintf("opentv-source-%d.m3u", sourceID))
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
