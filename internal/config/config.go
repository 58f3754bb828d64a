// Package config loads wikigraph settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kittclouds/wikigraph/pkg/layout"
	"github.com/kittclouds/wikigraph/pkg/scrape"
)

// Config is the full application configuration.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Layout   LayoutConfig   `yaml:"layout"`
	Store    StoreConfig    `yaml:"store"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ScrapeConfig tunes the article fetcher and its rate limit.
type ScrapeConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	MaxLinks          int           `yaml:"maxLinks"`
	SummaryLimit      int           `yaml:"summaryLimit"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requestsPerMinute"`
	Burst             int           `yaml:"burst"`
}

// LayoutConfig holds the initial force parameters and viewport size.
type LayoutConfig struct {
	layout.Params `yaml:",inline"`
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	Seed          uint64  `yaml:"seed"`
}

// StoreConfig points at the snapshot history database.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// SnapshotConfig names the working snapshot file.
type SnapshotConfig struct {
	Path string `yaml:"path"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Scrape: ScrapeConfig{
			UserAgent:         scrape.DefaultUserAgent,
			MaxLinks:          scrape.DefaultMaxLinks,
			SummaryLimit:      scrape.DefaultSummaryLimit,
			Timeout:           scrape.DefaultTimeout,
			RequestsPerMinute: 10,
			Burst:             10,
		},
		Layout: LayoutConfig{
			Params: layout.DefaultParams(),
			Width:  800,
			Height: 600,
			Seed:   1,
		},
		Store:    StoreConfig{DSN: "wikigraph.db"},
		Snapshot: SnapshotConfig{Path: "wikigraph.json"},
	}
}

// Load reads path over the defaults, then applies WIKIGRAPH_* variables.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse the config file: %w", err)
		}
	}
	ApplyEnv(&cfg)
	cfg.Layout.Params = cfg.Layout.Params.Clamped()
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
