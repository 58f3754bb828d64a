package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/kittclouds/wikigraph/internal/logger"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "WIKIGRAPH_"

// LoadEnv reads a .env file into the environment when one exists.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}
}

// ApplyEnv overrides cfg with any WIKIGRAPH_* variables that are set.
func ApplyEnv(cfg *Config) {
	cfg.Debug = GetEnvBool(EnvPrefix+"DEBUG", cfg.Debug)

	cfg.Scrape.UserAgent = GetEnvString(EnvPrefix+"USER_AGENT", cfg.Scrape.UserAgent)
	cfg.Scrape.MaxLinks = GetEnvInt(EnvPrefix+"MAX_LINKS", cfg.Scrape.MaxLinks)
	cfg.Scrape.SummaryLimit = GetEnvInt(EnvPrefix+"SUMMARY_LIMIT", cfg.Scrape.SummaryLimit)
	cfg.Scrape.Timeout = GetEnvDuration(EnvPrefix+"TIMEOUT", cfg.Scrape.Timeout)
	cfg.Scrape.RequestsPerMinute = GetEnvInt(EnvPrefix+"REQUESTS_PER_MINUTE", cfg.Scrape.RequestsPerMinute)
	cfg.Scrape.Burst = GetEnvInt(EnvPrefix+"BURST", cfg.Scrape.Burst)

	cfg.Layout.Repulsion = GetEnvNumeric(EnvPrefix+"REPULSION", cfg.Layout.Repulsion)
	cfg.Layout.LinkDistance = GetEnvNumeric(EnvPrefix+"LINK_DISTANCE", cfg.Layout.LinkDistance)
	cfg.Layout.Curvature = GetEnvNumeric(EnvPrefix+"CURVATURE", cfg.Layout.Curvature)
	cfg.Layout.Width = GetEnvNumeric(EnvPrefix+"WIDTH", cfg.Layout.Width)
	cfg.Layout.Height = GetEnvNumeric(EnvPrefix+"HEIGHT", cfg.Layout.Height)
	cfg.Layout.Seed = uint64(GetEnvInt(EnvPrefix+"SEED", int(cfg.Layout.Seed)))

	cfg.Store.DSN = GetEnvString(EnvPrefix+"STORE_DSN", cfg.Store.DSN)
	cfg.Snapshot.Path = GetEnvString(EnvPrefix+"SNAPSHOT_PATH", cfg.Snapshot.Path)
}

func GetEnvString(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func GetEnvNumeric(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	returnValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return returnValue
}

func GetEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	returnValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return returnValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	returnValue, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return returnValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if value == "true" || value == "false" {
		return value == "true"
	}
	return defaultValue
}
