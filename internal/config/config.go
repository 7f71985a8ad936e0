// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration tree for the ingestion engine. It is
// populated by LoadWithKoanf in three layers: struct defaults, an optional
// YAML file, then environment variable overrides.
type Config struct {
	Catalog   CatalogConfig   `koanf:"catalog"`
	Helix     HelixConfig     `koanf:"helix"`
	Torrent   TorrentConfig   `koanf:"torrent"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Trust     TrustConfig     `koanf:"trust"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// CatalogConfig configures the DuckDB-backed catalog store (spec.md §6).
type CatalogConfig struct {
	Path                   string        `koanf:"path" validate:"required"`
	MaxMemory              string        `koanf:"max_memory"`
	Threads                int           `koanf:"threads"`
	PreserveInsertionOrder bool          `koanf:"preserve_insertion_order"`
	ArchiveAfter           time.Duration `koanf:"archive_after"`
	ReportHideThreshold    int           `koanf:"report_hide_threshold" validate:"min=1"`
}

// HelixConfig configures the quota-metered platform adapter.
type HelixConfig struct {
	Enabled               bool     `koanf:"enabled"`
	APIKey                string   `koanf:"api_key"`
	DailyQuota            int      `koanf:"daily_quota" validate:"min=0"`
	SearchKeywords        []string `koanf:"search_keywords"`
	SearchIntervalMinutes int      `koanf:"search_interval_minutes" validate:"min=1"`
	RSSHintEnabled        bool     `koanf:"rss_hint_enabled"`
}

// TorrentConfig configures the rate-budgeted platform adapter.
type TorrentConfig struct {
	Enabled                  bool     `koanf:"enabled"`
	ClientID                 string   `koanf:"client_id"`
	ClientSecret             string   `koanf:"client_secret"`
	Categories               []string `koanf:"categories"`
	Keywords                 []string `koanf:"keywords"`
	RequestsPerMinute        int      `koanf:"requests_per_minute" validate:"min=1"`
	RateLimitSafetyThreshold float64  `koanf:"rate_limit_safety_threshold" validate:"min=0,max=1"`
}

// SchedulerConfig configures the suture-based task runtime (spec.md §4.3, §5).
type SchedulerConfig struct {
	TaskTimeLimit       time.Duration `koanf:"task_time_limit"`
	DiscoveryInterval   time.Duration `koanf:"discovery_interval"`
	LivenessInterval    time.Duration `koanf:"liveness_interval"`
	MissesBeforeEnded   int           `koanf:"misses_before_ended" validate:"min=1"`
	QuotaResetCron      string        `koanf:"quota_reset_cron"`
	PriorityRefreshCron string        `koanf:"priority_refresh_cron"`
	ArchiveCron         string        `koanf:"archive_cron"`
}

// TrustConfig configures trust-score seed overrides (spec.md §4.6).
type TrustConfig struct {
	SeedChannelsPath    string  `koanf:"seed_channels_path"`
	HistoryDefault      float64 `koanf:"history_default" validate:"min=0,max=1"`
	HistorySeedOverride float64 `koanf:"history_seed_override" validate:"min=0,max=1"`
}

// ServerConfig configures the internal ops HTTP surface (/healthz, /metrics,
// /debug/connectors) — not a client-facing feed API, see spec.md Non-goals.
type ServerConfig struct {
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the zerolog wiring in internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

var validate = validator.New()

// Validate runs struct-tag validation plus the cross-field checks a tag
// alone can't express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !c.Helix.Enabled && !c.Torrent.Enabled {
		return fmt.Errorf("config: at least one platform (helix or torrent) must be enabled")
	}
	if c.Helix.Enabled && c.Helix.APIKey == "" {
		return fmt.Errorf("config: helix.api_key is required when helix is enabled")
	}
	if c.Torrent.Enabled && (c.Torrent.ClientID == "" || c.Torrent.ClientSecret == "") {
		return fmt.Errorf("config: torrent.client_id and torrent.client_secret are required when torrent is enabled")
	}
	if c.Scheduler.LivenessInterval <= 0 {
		return fmt.Errorf("config: scheduler.liveness_interval must be positive")
	}
	if c.Scheduler.DiscoveryInterval <= 0 {
		return fmt.Errorf("config: scheduler.discovery_interval must be positive")
	}
	return nil
}
