package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	c := Load()
	if c.DBPath == "" || c.CacheDir == "" || c.Listen == "" {
		t.Errorf("missing defaults: %+v", c)
	}
	if c.StalkerPageConcurrency < 1 {
		t.Errorf("page concurrency must be >= 1; got %d", c.StalkerPageConcurrency)
	}
	if c.HTTPTimeout <= 0 || c.DownloadTimeout <= 0 {
		t.Errorf("timeouts must be positive: %+v", c)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv("OPENTV_LISTEN", ":9999")
	t.Setenv("OPENTV_HTTP_TIMEOUT", "5s")
	t.Setenv("OPENTV_STALKER_PAGE_CONCURRENCY", "3")
	c := Load()
	if c.Listen != ":9999" {
		t.Errorf("Listen = %q", c.Listen)
	}
	if c.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v", c.HTTPTimeout)
	}
	if c.StalkerPageConcurrency != 3 {
		t.Errorf("StalkerPageConcurrency = %d", c.StalkerPageConcurrency)
	}
}

func TestValidate_createsDirs(t *testing.T) {
	dir := t.TempDir()
	c := &Config{
		DBPath:   filepath.Join(dir, "data", "catalog.db"),
		CacheDir: filepath.Join(dir, "cache"),
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestM3UTempPath_perSource(t *testing.T) {
	c := &Config{CacheDir: "/tmp"}
	if c.M3UTempPath(1) == c.M3UTempPath(2) {
		t.Error("temp paths must differ per source")
	}
}
