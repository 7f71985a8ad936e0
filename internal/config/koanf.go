// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/streamaggregator/config.yaml",
	"/etc/streamaggregator/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the
// config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env
// vars.
func defaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Path:                   "/data/streamaggregator.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true,
			ArchiveAfter:           30 * 24 * time.Hour,
			ReportHideThreshold:    5,
		},
		Helix: HelixConfig{
			Enabled:               false,
			DailyQuota:            10000,
			SearchKeywords:        []string{},
			SearchIntervalMinutes: 30,
			RSSHintEnabled:        true,
		},
		Torrent: TorrentConfig{
			Enabled:                  false,
			Categories:               []string{},
			Keywords:                 []string{},
			RequestsPerMinute:        800,
			RateLimitSafetyThreshold: 0.8,
		},
		Scheduler: SchedulerConfig{
			TaskTimeLimit:       300 * time.Second,
			DiscoveryInterval:   30 * time.Minute,
			LivenessInterval:    2 * time.Minute,
			MissesBeforeEnded:   1,
			QuotaResetCron:      "0 0 * * *",
			PriorityRefreshCron: "0 * * * *",
			ArchiveCron:         "0 3 * * *",
		},
		Trust: TrustConfig{
			SeedChannelsPath:    "",
			HistoryDefault:      0.5,
			HistorySeedOverride: 1.0,
		},
		Server: ServerConfig{
			Port:    8080,
			Host:    "0.0.0.0",
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence: ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns
// the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when they arrive via environment variables.
var sliceConfigPaths = []string{
	"helix.search_keywords",
	"torrent.categories",
	"torrent.keywords",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Necessary because env vars arrive as strings but the
// config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HELIX_API_KEY -> helix.api_key
//   - TORRENT_CLIENT_ID -> torrent.client_id
//   - DUCKDB_PATH -> catalog.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Catalog / storage
		"duckdb_path":                   "catalog.path",
		"duckdb_max_memory":             "catalog.max_memory",
		"catalog_threads":               "catalog.threads",
		"catalog_archive_after":         "catalog.archive_after",
		"catalog_report_hide_threshold": "catalog.report_hide_threshold",

		// Helix (quota-metered platform)
		"helix_enabled":                 "helix.enabled",
		"helix_api_key":                 "helix.api_key",
		"helix_daily_quota":             "helix.daily_quota",
		"helix_search_keywords":         "helix.search_keywords",
		"helix_search_interval_minutes": "helix.search_interval_minutes",
		"helix_rss_hint_enabled":        "helix.rss_hint_enabled",

		// Torrent (rate-budgeted platform)
		"torrent_enabled":                     "torrent.enabled",
		"torrent_client_id":                   "torrent.client_id",
		"torrent_client_secret":               "torrent.client_secret",
		"torrent_categories":                  "torrent.categories",
		"torrent_keywords":                    "torrent.keywords",
		"torrent_requests_per_minute":         "torrent.requests_per_minute",
		"torrent_rate_limit_safety_threshold": "torrent.rate_limit_safety_threshold",

		// Scheduler
		"scheduler_task_time_limit":       "scheduler.task_time_limit",
		"scheduler_discovery_interval":    "scheduler.discovery_interval",
		"scheduler_liveness_interval":     "scheduler.liveness_interval",
		"scheduler_misses_before_ended":   "scheduler.misses_before_ended",
		"scheduler_quota_reset_cron":      "scheduler.quota_reset_cron",
		"scheduler_priority_refresh_cron": "scheduler.priority_refresh_cron",
		"scheduler_archive_cron":          "scheduler.archive_cron",

		// Trust scoring
		"trust_seed_channels_path":    "trust.seed_channels_path",
		"trust_history_default":       "trust.history_default",
		"trust_history_seed_override": "trust.history_seed_override",

		// Ops HTTP surface
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped to prevent random environment variables
	// from polluting config.
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage (custom
// sources, tests).
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}
