// Package main provides the wikigraph CLI.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hack-pad/hackpadfs"
	osfs "github.com/hack-pad/hackpadfs/os"
	"github.com/spf13/cobra"

	"github.com/kittclouds/wikigraph/internal/config"
	"github.com/kittclouds/wikigraph/internal/logger"
	"github.com/kittclouds/wikigraph/internal/logger/console"
	"github.com/kittclouds/wikigraph/internal/session"
	"github.com/kittclouds/wikigraph/internal/store"
	"github.com/kittclouds/wikigraph/pkg/layout"
	"github.com/kittclouds/wikigraph/pkg/scrape"
	"github.com/kittclouds/wikigraph/pkg/snapshot"
)

// Version is the current wikigraph CLI version
var Version = "0.1.0"

// Global flags
var (
	configPath   string
	snapshotPath string
	debug        bool
)

var rootCmd = &cobra.Command{
	Use:   "wikigraph",
	Short: "Explore Wikipedia as a graph of linked articles",
	Long: `wikigraph scrapes Wikipedia articles into a graph kept in a snapshot file.

Every command loads the working snapshot, applies its change and writes it back.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", "", "working snapshot file (default from config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newScraper builds the article fetcher; tests swap it for canned pages.
var newScraper = func(cfg config.ScrapeConfig) scrape.Scraper {
	return scrape.New(scrape.Config{
		UserAgent:    cfg.UserAgent,
		MaxLinks:     cfg.MaxLinks,
		SummaryLimit: cfg.SummaryLimit,
		Timeout:      cfg.Timeout,
		Policy:       scrape.NewRatePolicy(cfg.RequestsPerMinute, cfg.Burst),
	})
}

// app is the state one command runs against.
type app struct {
	cfg      config.Config
	fs       hackpadfs.FS
	path     string // fs path of the working snapshot
	explorer *session.Explorer
	history  store.Storer
}

// openApp loads config and the working snapshot. withHistory opens the
// SQLite history store as well.
func openApp(withHistory bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: cfg.Debug}))

	if snapshotPath != "" {
		cfg.Snapshot.Path = snapshotPath
	}
	fsys := osfs.NewFS()
	abs, err := filepath.Abs(cfg.Snapshot.Path)
	if err != nil {
		return nil, err
	}
	path, err := fsys.FromOSPath(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot path %q: %w", cfg.Snapshot.Path, err)
	}

	a := &app{cfg: cfg, fs: fsys, path: path}
	if withHistory {
		a.history, err = store.NewSQLiteStoreWithDSN(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
	}

	a.explorer = session.New(session.Options{
		Scraper: newScraper(cfg.Scrape),
		History: a.history,
		Layout: layout.Config{
			Width:  cfg.Layout.Width,
			Height: cfg.Layout.Height,
			Seed:   cfg.Layout.Seed,
			Params: cfg.Layout.Params,
		},
	})

	doc, err := snapshot.Load(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("Starting a new graph", "snapshot", cfg.Snapshot.Path)
	case err != nil:
		a.Close()
		return nil, fmt.Errorf("failed to load %s: %w", cfg.Snapshot.Path, err)
	default:
		a.explorer.Load(doc)
	}
	return a, nil
}

// Save writes the graph back to the working snapshot.
func (a *app) Save() error {
	if err := snapshot.Save(a.fs, a.path, a.explorer.Document()); err != nil {
		return err
	}
	logger.Debug("Saved snapshot", "path", a.cfg.Snapshot.Path)
	return nil
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.Warn("Failed to close history", "error", err)
		}
	}
}
