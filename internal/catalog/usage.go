// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
)

// RecordUsage appends an immutable row to api_usage_log. Operator-visible
// health (spec.md §7) is derived from this log, so the insert is never
// retried against a transaction conflict — a dropped usage record just
// means one fewer audit row, not a correctness problem.
func (db *DB) RecordUsage(ctx context.Context, rec model.ApiUsageRecord) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO api_usage_log (id, platform, endpoint, quota_units_consumed, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), string(rec.Platform), rec.Endpoint, rec.UnitsConsumed, rec.Success, rec.ErrorMessage, at)
	if err != nil {
		return fmt.Errorf("catalog: record usage: %w", err)
	}
	return nil
}

// RecordFollow persists a device's subscription to a channel. Following
// twice is idempotent — the unique (user_device_id, channel_id) constraint
// makes the second call a no-op.
func (db *DB) RecordFollow(ctx context.Context, f model.Follow) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	at := f.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO user_follows (user_device_id, channel_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_device_id, channel_id) DO NOTHING
	`, f.DeviceID, f.ChannelID, at)
	if err != nil {
		return fmt.Errorf("catalog: record follow: %w", err)
	}
	return nil
}

// RecordReport persists a device's flag against a stream, increments the
// stream's report_count, and flips is_hidden once hideThreshold reports
// have accumulated (spec.md §10 supplemented moderation feature).
func (db *DB) RecordReport(ctx context.Context, r model.Report, hideThreshold int) error {
	mu := db.acquireKeyLock("report/" + r.StreamID)
	defer db.releaseKeyLock(mu)

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return withRetry(ctx, func() error {
		return db.doRecordReport(ctx, r, hideThreshold)
	})
}

func (db *DB) doRecordReport(ctx context.Context, r model.Report, hideThreshold int) error {
	at := r.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO stream_reports (id, stream_id, reporter_device_id, reason, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), r.StreamID, r.DeviceID, r.Reason, r.Notes, at); err != nil {
		return fmt.Errorf("catalog: insert stream report: %w", err)
	}

	var reportCount int
	row := db.conn.QueryRowContext(ctx, `
		UPDATE streams SET report_count = report_count + 1, updated_at = ?
		WHERE id = ? RETURNING report_count
	`, at, r.StreamID)
	if err := row.Scan(&reportCount); err != nil {
		return fmt.Errorf("catalog: increment report_count: %w", err)
	}

	if hideThreshold > 0 && reportCount >= hideThreshold {
		if _, err := db.conn.ExecContext(ctx, `UPDATE streams SET is_hidden = true WHERE id = ?`, r.StreamID); err != nil {
			return fmt.Errorf("catalog: auto-hide stream: %w", err)
		}
	}
	return nil
}
