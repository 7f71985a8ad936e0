// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
)

// UpsertStream inserts s or updates the existing row identified by
// (channel_id, platform_stream_id). peak_viewer_count is taken as
// GREATEST(existing, s.PeakViewerCount) so repeated discovery never lowers
// the recorded peak (spec.md §8 scenario 3).
func (db *DB) UpsertStream(ctx context.Context, s *model.Stream) error {
	if err := s.Validate(); err != nil {
		return err
	}

	key := s.ChannelID + "/" + s.PlatformStreamID
	mu := db.acquireKeyLock(key)
	defer db.releaseKeyLock(mu)

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return withRetry(ctx, func() error {
		return db.doUpsertStream(ctx, s)
	})
}

func (db *DB) doUpsertStream(ctx context.Context, s *model.Stream) error {
	existing, err := db.getStreamByPlatformID(ctx, s.ChannelID, s.PlatformStreamID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing != nil {
		s.ID = existing.ID
		s.DetectedAt = existing.DetectedAt
		if existing.PeakViewerCount > s.PeakViewerCount {
			s.PeakViewerCount = existing.PeakViewerCount
		}
	} else {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}
		if s.DetectedAt.IsZero() {
			s.DetectedAt = now
		}
	}
	if s.LastCheckedAt.IsZero() {
		s.LastCheckedAt = now
	}
	s.MatchedKeywords = model.DedupeKeywords(s.MatchedKeywords)

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO streams (id, channel_id, platform, platform_stream_id, title, description,
			thumbnail_url, embed_url, status, viewer_count, peak_viewer_count, start_time,
			end_time, detected_at, last_checked_at, matched_keywords, geo_city, geo_region,
			geo_country, language, is_hidden, report_count, discovery_method,
			consecutive_misses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, platform_stream_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			thumbnail_url = EXCLUDED.thumbnail_url,
			embed_url = EXCLUDED.embed_url,
			status = EXCLUDED.status,
			viewer_count = EXCLUDED.viewer_count,
			peak_viewer_count = GREATEST(streams.peak_viewer_count, EXCLUDED.peak_viewer_count),
			start_time = COALESCE(streams.start_time, EXCLUDED.start_time),
			end_time = EXCLUDED.end_time,
			last_checked_at = EXCLUDED.last_checked_at,
			matched_keywords = EXCLUDED.matched_keywords,
			geo_city = EXCLUDED.geo_city,
			geo_region = EXCLUDED.geo_region,
			geo_country = EXCLUDED.geo_country,
			language = EXCLUDED.language,
			consecutive_misses = EXCLUDED.consecutive_misses,
			updated_at = EXCLUDED.updated_at
	`,
		s.ID, s.ChannelID, string(s.Platform), s.PlatformStreamID, s.Title, s.Description,
		s.ThumbnailURL, s.EmbedURL, string(s.Status), s.ViewerCount, s.PeakViewerCount, s.StartTime,
		s.EndTime, s.DetectedAt, s.LastCheckedAt, s.MatchedKeywords, s.Geo.City, s.Geo.Region,
		s.Geo.Country, s.Language, s.IsHidden, s.ReportCount, string(s.DiscoveryMethod),
		s.ConsecutiveMisses, now, now,
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert stream: %w", err)
	}
	return nil
}

func (db *DB) getStreamByPlatformID(ctx context.Context, channelID, platformStreamID string) (*model.Stream, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, channel_id, platform, platform_stream_id, title, description, thumbnail_url,
			embed_url, status, viewer_count, peak_viewer_count, start_time, end_time, detected_at,
			last_checked_at, matched_keywords, geo_city, geo_region, geo_country, language,
			is_hidden, report_count, discovery_method, consecutive_misses
		FROM streams WHERE channel_id = ? AND platform_stream_id = ?
	`, channelID, platformStreamID)

	s, err := scanStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get stream: %w", err)
	}
	return s, nil
}

// ApplyStreamUpdate folds a liveness poll result into the matching stream
// row. Status transitions follow spec.md §4.4: an upstream-reported status
// is applied as-is, except that a terminal row (ENDED/REMOVED) never
// re-enters LIVE for the same identity.
func (db *DB) ApplyStreamUpdate(ctx context.Context, platform model.Platform, upd model.StreamUpdate) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	key := string(platform) + "/" + upd.PlatformStreamID
	mu := db.acquireKeyLock(key)
	defer db.releaseKeyLock(mu)

	return withRetry(ctx, func() error {
		return db.doApplyStreamUpdate(ctx, platform, upd)
	})
}

func (db *DB) doApplyStreamUpdate(ctx context.Context, platform model.Platform, upd model.StreamUpdate) error {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, status, last_checked_at FROM streams
		WHERE platform = ? AND platform_stream_id = ?
	`, string(platform), upd.PlatformStreamID)

	var id, currentStatus string
	var lastCheckedAt time.Time
	if err := row.Scan(&id, &currentStatus, &lastCheckedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil // nothing to apply against; adapter should have discovered it first
		}
		return fmt.Errorf("catalog: lookup stream for update: %w", err)
	}

	newStatus := upd.Status
	if model.StreamStatus(currentStatus).Terminal() {
		newStatus = model.StreamStatus(currentStatus) // terminal states never revert to LIVE
	}
	newCheckedAt := upd.LastCheckedAt
	if newCheckedAt.Before(lastCheckedAt) {
		newCheckedAt = lastCheckedAt // last_checked_at is monotonic non-decreasing
	}

	var endTimeArg any
	if newStatus.Terminal() {
		endTimeArg = newCheckedAt
	}

	// spec.md §4.4: S=UPCOMING, S'=LIVE promotes to LIVE and sets
	// start_time = update.last_checked_at if it was null. Every other
	// transition leaves start_time untouched, so bind NULL elsewhere and let
	// COALESCE no-op.
	var startTimeArg any
	if model.StreamStatus(currentStatus) == model.StreamUpcoming && newStatus == model.StreamLive {
		startTimeArg = newCheckedAt
	}

	_, err := db.conn.ExecContext(ctx, `
		UPDATE streams SET
			viewer_count = ?,
			peak_viewer_count = GREATEST(peak_viewer_count, ?),
			status = ?,
			start_time = COALESCE(start_time, ?),
			end_time = COALESCE(end_time, ?),
			last_checked_at = ?,
			consecutive_misses = 0,
			updated_at = ?
		WHERE id = ?
	`, upd.ViewerCount, upd.ViewerCount, string(newStatus), startTimeArg, endTimeArg, newCheckedAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("catalog: apply stream update: %w", err)
	}
	return nil
}

// LiveStreamIDs returns the platform_stream_id of every currently-LIVE
// stream on platform.
func (db *DB) LiveStreamIDs(ctx context.Context, platform model.Platform) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT platform_stream_id FROM streams WHERE platform = ? AND status = ?
	`, string(platform), string(model.StreamLive))
	if err != nil {
		return nil, fmt.Errorf("catalog: list live stream ids: %w", err)
	}
	defer closeQuietly(rows)

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("catalog: scan live stream id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkMissingAsEnded transitions LIVE streams absent from a liveness poll's
// seenIDs toward ENDED. A stream is given missesBeforeEnded consecutive
// misses of slack (spec.md §9's open question) before it is declared
// ENDED; missesBeforeEnded=1 matches spec.md §8 scenario 2's literal
// single-miss behavior.
func (db *DB) MarkMissingAsEnded(ctx context.Context, platform model.Platform, seenIDs []string, missesBeforeEnded int, now time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if missesBeforeEnded < 1 {
		missesBeforeEnded = 1
	}

	seen := make(map[string]struct{}, len(seenIDs))
	for _, id := range seenIDs {
		seen[id] = struct{}{}
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, platform_stream_id, consecutive_misses FROM streams
		WHERE platform = ? AND status = ?
	`, string(platform), string(model.StreamLive))
	if err != nil {
		return 0, fmt.Errorf("catalog: scan live streams for end-of-life: %w", err)
	}

	type missing struct {
		id     string
		misses int
	}
	var toEnd, toBump []missing
	for rows.Next() {
		var id, platformStreamID string
		var misses int
		if err := rows.Scan(&id, &platformStreamID, &misses); err != nil {
			closeQuietly(rows)
			return 0, fmt.Errorf("catalog: scan stream row: %w", err)
		}
		if _, ok := seen[platformStreamID]; ok {
			continue
		}
		misses++
		if misses >= missesBeforeEnded {
			toEnd = append(toEnd, missing{id: id, misses: misses})
		} else {
			toBump = append(toBump, missing{id: id, misses: misses})
		}
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return 0, err
	}
	closeQuietly(rows)

	for _, m := range toEnd {
		_, err := db.conn.ExecContext(ctx, `
			UPDATE streams SET status = ?, end_time = ?, viewer_count = 0,
				consecutive_misses = ?, updated_at = ?
			WHERE id = ?
		`, string(model.StreamEnded), now, m.misses, now, m.id)
		if err != nil {
			return 0, fmt.Errorf("catalog: mark stream ended: %w", err)
		}
	}
	for _, m := range toBump {
		_, err := db.conn.ExecContext(ctx, `
			UPDATE streams SET consecutive_misses = ?, updated_at = ? WHERE id = ?
		`, m.misses, now, m.id)
		if err != nil {
			return 0, fmt.Errorf("catalog: bump stream miss counter: %w", err)
		}
	}
	return len(toEnd), nil
}

// ArchiveOlderThan deletes ENDED/REMOVED stream rows whose end_time
// precedes before.
func (db *DB) ArchiveOlderThan(ctx context.Context, before time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	res, err := db.conn.ExecContext(ctx, `
		DELETE FROM streams WHERE status IN (?, ?) AND end_time < ?
	`, string(model.StreamEnded), string(model.StreamRemoved), before)
	if err != nil {
		return 0, fmt.Errorf("catalog: archive old streams: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("catalog: archive rows affected: %w", err)
	}
	return int(n), nil
}

func scanStream(r rowScanner) (*model.Stream, error) {
	var s model.Stream
	var platform, status, discoveryMethod string
	var startTime, endTime sql.NullTime
	var keywords []string

	err := r.Scan(&s.ID, &s.ChannelID, &platform, &s.PlatformStreamID, &s.Title, &s.Description,
		&s.ThumbnailURL, &s.EmbedURL, &status, &s.ViewerCount, &s.PeakViewerCount, &startTime,
		&endTime, &s.DetectedAt, &s.LastCheckedAt, &keywords, &s.Geo.City, &s.Geo.Region,
		&s.Geo.Country, &s.Language, &s.IsHidden, &s.ReportCount, &discoveryMethod,
		&s.ConsecutiveMisses)
	if err != nil {
		return nil, err
	}

	s.Platform = model.Platform(platform)
	s.Status = model.StreamStatus(status)
	s.DiscoveryMethod = model.DiscoveryMethod(discoveryMethod)
	s.MatchedKeywords = keywords
	if startTime.Valid {
		t := startTime.Time
		s.StartTime = &t
	}
	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	return &s, nil
}
