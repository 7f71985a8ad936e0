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
	"github.com/tomtom215/streamaggregator/internal/scoring"
)

// UpsertChannel inserts ch or updates the existing row identified by
// (platform, platform_channel_id). ch.ID is populated with the row's id
// (existing or newly minted) on success.
func (db *DB) UpsertChannel(ctx context.Context, ch *model.Channel) error {
	key := string(ch.Platform) + "/" + ch.PlatformChannelID
	mu := db.acquireKeyLock(key)
	defer db.releaseKeyLock(mu)

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	return withRetry(ctx, func() error {
		return db.doUpsertChannel(ctx, ch)
	})
}

func (db *DB) doUpsertChannel(ctx context.Context, ch *model.Channel) error {
	existing, err := db.GetChannel(ctx, ch.Platform, ch.PlatformChannelID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing != nil {
		ch.ID = existing.ID
		ch.CreatedAt = existing.CreatedAt
	} else {
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.CreatedAt = now
	}
	ch.UpdatedAt = now

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO channels (id, platform, platform_channel_id, display_name, avatar_url,
			trust_score, subscriber_count, account_created_at, last_scraped_at, last_live_at,
			polling_priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_channel_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			trust_score = EXCLUDED.trust_score,
			subscriber_count = EXCLUDED.subscriber_count,
			account_created_at = EXCLUDED.account_created_at,
			last_scraped_at = EXCLUDED.last_scraped_at,
			last_live_at = EXCLUDED.last_live_at,
			polling_priority = EXCLUDED.polling_priority,
			updated_at = EXCLUDED.updated_at
	`,
		ch.ID, string(ch.Platform), ch.PlatformChannelID, ch.DisplayName, ch.AvatarURL,
		ch.TrustScore, ch.SubscriberCount, ch.AccountCreatedAt, ch.LastScrapedAt, ch.LastLiveAt,
		string(ch.PollingPriority), ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("catalog: upsert channel: %w", err)
	}
	return nil
}

// GetChannel looks up a channel by its platform identity.
func (db *DB) GetChannel(ctx context.Context, platform model.Platform, platformChannelID string) (*model.Channel, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, platform, platform_channel_id, display_name, avatar_url, trust_score,
			subscriber_count, account_created_at, last_scraped_at, last_live_at,
			polling_priority, created_at, updated_at
		FROM channels WHERE platform = ? AND platform_channel_id = ?
	`, string(platform), platformChannelID)

	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get channel: %w", err)
	}
	return ch, nil
}

// ChannelsByPriority returns every channel on platform currently binned
// into priority.
func (db *DB) ChannelsByPriority(ctx context.Context, platform model.Platform, priority model.PollingPriority) ([]model.Channel, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, platform, platform_channel_id, display_name, avatar_url, trust_score,
			subscriber_count, account_created_at, last_scraped_at, last_live_at,
			polling_priority, created_at, updated_at
		FROM channels WHERE platform = ? AND polling_priority = ?
	`, string(platform), string(priority))
	if err != nil {
		return nil, fmt.Errorf("catalog: list channels by priority: %w", err)
	}
	defer closeQuietly(rows)

	var out []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan channel: %w", err)
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// RefreshPollingPriorities recomputes every channel's polling_priority
// column against now and writes back only the rows that changed.
func (db *DB) RefreshPollingPriorities(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT id, last_live_at, polling_priority FROM channels`)
	if err != nil {
		return 0, fmt.Errorf("catalog: scan channels for priority refresh: %w", err)
	}

	type pending struct {
		id       string
		priority model.PollingPriority
	}
	var toUpdate []pending
	for rows.Next() {
		var id string
		var lastLive sql.NullTime
		var current string
		if err := rows.Scan(&id, &lastLive, &current); err != nil {
			closeQuietly(rows)
			return 0, fmt.Errorf("catalog: scan channel row: %w", err)
		}
		ch := &model.Channel{}
		if lastLive.Valid {
			t := lastLive.Time
			ch.LastLiveAt = &t
		}
		want := scoring.PollingPriority(ch, now)
		if string(want) != current {
			toUpdate = append(toUpdate, pending{id: id, priority: want})
		}
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return 0, err
	}
	closeQuietly(rows)

	for _, p := range toUpdate {
		if _, err := db.conn.ExecContext(ctx, `UPDATE channels SET polling_priority = ?, updated_at = ? WHERE id = ?`,
			string(p.priority), now, p.id); err != nil {
			return 0, fmt.Errorf("catalog: update polling_priority: %w", err)
		}
	}
	return len(toUpdate), nil
}

// SeedChannel upserts a pre-vetted channel into the seed allowlist.
func (db *DB) SeedChannel(ctx context.Context, sc model.SeedChannel) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO seed_channels (platform, platform_channel_id, category, priority)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (platform, platform_channel_id) DO UPDATE SET
			category = EXCLUDED.category, priority = EXCLUDED.priority
	`, string(sc.Platform), sc.PlatformChannelID, sc.Category, sc.Priority)
	if err != nil {
		return fmt.Errorf("catalog: seed channel: %w", err)
	}
	return nil
}

// SeedChannels returns the full seed allowlist.
func (db *DB) SeedChannels(ctx context.Context) ([]model.SeedChannel, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `SELECT platform, platform_channel_id, category, priority FROM seed_channels`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list seed channels: %w", err)
	}
	defer closeQuietly(rows)

	var out []model.SeedChannel
	for rows.Next() {
		var sc model.SeedChannel
		var platform string
		if err := rows.Scan(&platform, &sc.PlatformChannelID, &sc.Category, &sc.Priority); err != nil {
			return nil, fmt.Errorf("catalog: scan seed channel: %w", err)
		}
		sc.Platform = model.Platform(platform)
		out = append(out, sc)
	}
	return out, rows.Err()
}

// IsSeedChannel reports whether (platform, platformChannelID) is on the
// seed allowlist.
func (db *DB) IsSeedChannel(ctx context.Context, platform model.Platform, platformChannelID string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seed_channels WHERE platform = ? AND platform_channel_id = ?
	`, string(platform), platformChannelID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("catalog: check seed channel: %w", err)
	}
	return count > 0, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows, both of which satisfy
// it, so scanChannel serves GetChannel and ChannelsByPriority alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(r rowScanner) (*model.Channel, error) {
	var ch model.Channel
	var platform, priority string
	var accountCreated, lastScraped, lastLive sql.NullTime

	err := r.Scan(&ch.ID, &platform, &ch.PlatformChannelID, &ch.DisplayName, &ch.AvatarURL,
		&ch.TrustScore, &ch.SubscriberCount, &accountCreated, &lastScraped, &lastLive,
		&priority, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}

	ch.Platform = model.Platform(platform)
	ch.PollingPriority = model.PollingPriority(priority)
	if accountCreated.Valid {
		t := accountCreated.Time
		ch.AccountCreatedAt = &t
	}
	if lastScraped.Valid {
		t := lastScraped.Time
		ch.LastScrapedAt = &t
	}
	if lastLive.Valid {
		t := lastLive.Time
		ch.LastLiveAt = &t
	}
	return &ch, nil
}
