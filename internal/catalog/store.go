// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package catalog is the ingestion engine's sole write path to durable
// state (spec.md §4.5, §6): channel and stream upserts, status transitions,
// follow/report persistence, the API usage audit log, and the seed-channel
// allowlist. Everything above this package — scheduler, platform adapters,
// scoring — depends only on the Store interface; the DuckDB implementation
// is an internal detail.
package catalog

import (
	"context"
	"time"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
)

// Store is the catalog's write and read surface. Every method is a
// single-row transaction per spec.md §4.5 — there is no cross-row
// coordination, so callers never need to wrap multiple Store calls in an
// outer transaction.
type Store interface {
	// UpsertChannel inserts a channel or updates it by (platform,
	// platform_channel_id), minting ch.ID on first sight.
	UpsertChannel(ctx context.Context, ch *model.Channel) error

	// GetChannel looks up a channel by its platform identity. Returns
	// (nil, nil) if no such channel exists.
	GetChannel(ctx context.Context, platform model.Platform, platformChannelID string) (*model.Channel, error)

	// ChannelsByPriority returns channels on platform currently binned into
	// priority. The scheduler does not call it.
	ChannelsByPriority(ctx context.Context, platform model.Platform, priority model.PollingPriority) ([]model.Channel, error)

	// RefreshPollingPriorities recomputes every channel's polling_priority
	// column against now, returning the count of rows changed. Driven by
	// the scheduler's priority-refresh maintenance cron (spec.md §4.3).
	RefreshPollingPriorities(ctx context.Context, now time.Time) (int, error)

	// UpsertStream inserts a stream or updates it by (channel_id,
	// platform_stream_id), minting s.ID on first sight. peak_viewer_count
	// is taken as GREATEST(existing, s.PeakViewerCount) so repeated
	// discovery never lowers the recorded peak (spec.md §8 scenario 3).
	UpsertStream(ctx context.Context, s *model.Stream) error

	// ApplyStreamUpdate folds a liveness poll result into the matching
	// stream row: viewer_count is set, peak_viewer_count is raised via
	// GREATEST, last_checked_at advances monotonically, and status
	// transitions follow spec.md §4.4's DAG. Applying the same update
	// twice is idempotent except for last_checked_at.
	ApplyStreamUpdate(ctx context.Context, platform model.Platform, upd model.StreamUpdate) error

	// LiveStreamIDs returns the platform_stream_id of every currently-LIVE
	// stream on platform, for the scheduler to hand to a liveness poll.
	LiveStreamIDs(ctx context.Context, platform model.Platform) ([]string, error)

	// MarkMissingAsEnded transitions every LIVE stream on platform whose
	// platform_stream_id is absent from seenIDs to ENDED (or increments its
	// miss counter short of missesBeforeEnded), per spec.md §8 scenario 2
	// and §9's consecutive-misses open question. Returns the count of rows
	// transitioned to ENDED.
	MarkMissingAsEnded(ctx context.Context, platform model.Platform, seenIDs []string, missesBeforeEnded int, now time.Time) (int, error)

	// ArchiveOlderThan deletes ENDED/REMOVED stream rows whose end_time
	// precedes before, returning the count removed. Driven by the
	// scheduler's archive-old maintenance cron.
	ArchiveOlderThan(ctx context.Context, before time.Time) (int, error)

	// RecordUsage appends an immutable row to api_usage_log.
	RecordUsage(ctx context.Context, rec model.ApiUsageRecord) error

	// RecordFollow persists a device's subscription to a channel.
	// Idempotent: following twice leaves a single row.
	RecordFollow(ctx context.Context, f model.Follow) error

	// RecordReport persists a device's flag against a stream, increments
	// the stream's report_count, and flips is_hidden once hideThreshold is
	// reached (spec.md §10 supplemented moderation feature).
	RecordReport(ctx context.Context, r model.Report, hideThreshold int) error

	// SeedChannel upserts a pre-vetted channel into the seed allowlist.
	SeedChannel(ctx context.Context, sc model.SeedChannel) error

	// SeedChannels returns the full seed allowlist.
	SeedChannels(ctx context.Context) ([]model.SeedChannel, error)

	// IsSeedChannel reports whether (platform, platformChannelID) is on
	// the seed allowlist, for the trust-score history override (§4.6).
	IsSeedChannel(ctx context.Context, platform model.Platform, platformChannelID string) (bool, error)

	// Close releases the underlying connection pool.
	Close() error
}
