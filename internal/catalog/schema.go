// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the catalog tables spec.md §6 lists, plus the
// bookkeeping columns DESIGN.md's schema notes describe (streams.platform,
// streams.discovery_method, streams.consecutive_misses and the like).
// Timestamps are plain TIMESTAMP (not TIMESTAMPTZ) so the schema never
// depends on DuckDB's icu extension — the WAL-replay bug the teacher works
// around in internal/database.go's preloadExtensions does not apply here.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id                   VARCHAR PRIMARY KEY,
			platform             VARCHAR NOT NULL,
			platform_channel_id  VARCHAR NOT NULL,
			display_name         VARCHAR,
			avatar_url           VARCHAR,
			trust_score          DOUBLE NOT NULL DEFAULT 0,
			subscriber_count     BIGINT NOT NULL DEFAULT 0,
			account_created_at   TIMESTAMP,
			last_scraped_at      TIMESTAMP,
			last_live_at         TIMESTAMP,
			polling_priority     VARCHAR NOT NULL DEFAULT 'MEDIUM',
			created_at           TIMESTAMP NOT NULL,
			updated_at           TIMESTAMP NOT NULL,
			UNIQUE (platform, platform_channel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS streams (
			id                   VARCHAR PRIMARY KEY,
			channel_id           VARCHAR NOT NULL REFERENCES channels(id),
			platform             VARCHAR NOT NULL,
			platform_stream_id   VARCHAR NOT NULL,
			title                VARCHAR,
			description          VARCHAR,
			thumbnail_url        VARCHAR,
			embed_url            VARCHAR,
			status               VARCHAR NOT NULL,
			viewer_count         BIGINT NOT NULL DEFAULT 0,
			peak_viewer_count    BIGINT NOT NULL DEFAULT 0,
			start_time           TIMESTAMP,
			end_time             TIMESTAMP,
			detected_at          TIMESTAMP NOT NULL,
			last_checked_at      TIMESTAMP NOT NULL,
			matched_keywords     VARCHAR[],
			geo_city             VARCHAR,
			geo_region           VARCHAR,
			geo_country          VARCHAR,
			language             VARCHAR,
			is_hidden            BOOLEAN NOT NULL DEFAULT false,
			report_count         INTEGER NOT NULL DEFAULT 0,
			discovery_method     VARCHAR,
			consecutive_misses   INTEGER NOT NULL DEFAULT 0,
			created_at           TIMESTAMP NOT NULL,
			updated_at           TIMESTAMP NOT NULL,
			UNIQUE (channel_id, platform_stream_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_follows (
			user_device_id VARCHAR NOT NULL,
			channel_id     VARCHAR NOT NULL REFERENCES channels(id),
			created_at     TIMESTAMP NOT NULL,
			UNIQUE (user_device_id, channel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS stream_reports (
			id                  VARCHAR PRIMARY KEY,
			stream_id           VARCHAR NOT NULL REFERENCES streams(id),
			reporter_device_id  VARCHAR NOT NULL,
			reason              VARCHAR,
			notes               VARCHAR,
			created_at          TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_usage_log (
			id                     VARCHAR PRIMARY KEY,
			platform               VARCHAR NOT NULL,
			endpoint               VARCHAR NOT NULL,
			quota_units_consumed   INTEGER NOT NULL DEFAULT 0,
			success                BOOLEAN NOT NULL,
			error_message          VARCHAR,
			created_at             TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seed_channels (
			platform            VARCHAR NOT NULL,
			platform_channel_id VARCHAR NOT NULL,
			category            VARCHAR,
			priority            VARCHAR,
			PRIMARY KEY (platform, platform_channel_id)
		)`,
	} {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: create table: %w", err)
		}
	}
	return nil
}

// createIndexes adds the indexes the scheduler's hot query paths need:
// per-platform liveness lookups, the priority-binned discovery/liveness
// batch selection, and the archive sweep's status+end_time scan.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_channels_platform_priority ON channels (platform, polling_priority)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_platform_status ON streams (platform, status)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_channel ON streams (channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_streams_status_end_time ON streams (status, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_api_usage_platform_created ON api_usage_log (platform, created_at)`,
	} {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("catalog: create index: %w", err)
		}
	}
	return nil
}
