// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
)

func seedChannelForStreams(t *testing.T, db *DB, ctx context.Context, platformChannelID string) string {
	t.Helper()
	ch := &model.Channel{Platform: model.PlatformHelix, PlatformChannelID: platformChannelID}
	require.NoError(t, db.UpsertChannel(ctx, ch))
	return ch.ID
}

func TestUpsertStreamPeakTracking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-1")

	now := time.Now().UTC()
	mk := func(viewers int64) *model.Stream {
		return &model.Stream{
			ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
			Status: model.StreamLive, ViewerCount: viewers, PeakViewerCount: viewers,
			DetectedAt: now, LastCheckedAt: now,
		}
	}

	require.NoError(t, db.UpsertStream(ctx, mk(100)))
	require.NoError(t, db.UpsertStream(ctx, mk(250)))
	require.NoError(t, db.UpsertStream(ctx, mk(180)))

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(180), got.ViewerCount)
	assert.Equal(t, int64(250), got.PeakViewerCount)
}

func TestMarkMissingAsEndedScenario(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-2")

	now := time.Now().UTC()
	s := &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
		Status: model.StreamLive, ViewerCount: 100, PeakViewerCount: 250,
		DetectedAt: now, LastCheckedAt: now,
	}
	require.NoError(t, db.UpsertStream(ctx, s))

	pollInstant := now.Add(time.Minute)
	ended, err := db.MarkMissingAsEnded(ctx, model.PlatformHelix, nil, 1, pollInstant)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	assert.Equal(t, model.StreamEnded, got.Status)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(pollInstant))
	assert.Equal(t, int64(0), got.ViewerCount)
	assert.Equal(t, int64(250), got.PeakViewerCount, "peak must survive end-of-life transition")
}

func TestMarkMissingAsEndedRespectsMissesBeforeEnded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-3")

	now := time.Now().UTC()
	s := &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
		Status: model.StreamLive, ViewerCount: 50, PeakViewerCount: 50,
		DetectedAt: now, LastCheckedAt: now,
	}
	require.NoError(t, db.UpsertStream(ctx, s))

	ended, err := db.MarkMissingAsEnded(ctx, model.PlatformHelix, nil, 2, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, ended, "first miss short of threshold must not end the stream")

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	assert.Equal(t, model.StreamLive, got.Status)
	assert.Equal(t, 1, got.ConsecutiveMisses)

	ended, err = db.MarkMissingAsEnded(ctx, model.PlatformHelix, nil, 2, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, ended, "second consecutive miss reaches the threshold")
}

func TestApplyStreamUpdateIdempotentExceptLastCheckedAt(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-4")

	now := time.Now().UTC()
	require.NoError(t, db.UpsertStream(ctx, &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
		Status: model.StreamLive, ViewerCount: 10, PeakViewerCount: 10,
		DetectedAt: now, LastCheckedAt: now,
	}))

	upd := model.StreamUpdate{PlatformStreamID: "x123", ViewerCount: 40, Status: model.StreamLive, LastCheckedAt: now.Add(time.Minute)}
	require.NoError(t, db.ApplyStreamUpdate(ctx, model.PlatformHelix, upd))
	require.NoError(t, db.ApplyStreamUpdate(ctx, model.PlatformHelix, upd))

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	assert.Equal(t, int64(40), got.ViewerCount)
	assert.Equal(t, int64(40), got.PeakViewerCount)
}

func TestApplyStreamUpdateNeverRevivesTerminalStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-5")

	now := time.Now().UTC()
	require.NoError(t, db.UpsertStream(ctx, &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
		Status: model.StreamLive, ViewerCount: 10, PeakViewerCount: 10,
		DetectedAt: now, LastCheckedAt: now,
	}))

	require.NoError(t, db.ApplyStreamUpdate(ctx, model.PlatformHelix, model.StreamUpdate{
		PlatformStreamID: "x123", ViewerCount: 0, Status: model.StreamEnded, LastCheckedAt: now.Add(time.Minute),
	}))

	require.NoError(t, db.ApplyStreamUpdate(ctx, model.PlatformHelix, model.StreamUpdate{
		PlatformStreamID: "x123", ViewerCount: 99, Status: model.StreamLive, LastCheckedAt: now.Add(2 * time.Minute),
	}))

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	assert.Equal(t, model.StreamEnded, got.Status, "ENDED must be terminal even if upstream later reports LIVE again")
}

func TestApplyStreamUpdatePromotesUpcomingToLiveAndSetsStartTime(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-upcoming")

	now := time.Now().UTC()
	require.NoError(t, db.UpsertStream(ctx, &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
		Status: model.StreamUpcoming, DetectedAt: now, LastCheckedAt: now,
	}))

	checkedAt := now.Add(time.Minute)
	require.NoError(t, db.ApplyStreamUpdate(ctx, model.PlatformHelix, model.StreamUpdate{
		PlatformStreamID: "x123", ViewerCount: 5, Status: model.StreamLive, LastCheckedAt: checkedAt,
	}))

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	assert.Equal(t, model.StreamLive, got.Status)
	require.NotNil(t, got.StartTime, "promoting UPCOMING to LIVE must set start_time when it was null")
	assert.True(t, got.StartTime.Equal(checkedAt))
}

func TestApplyStreamUpdateLeavesStartTimeUntouchedOutsideUpcomingToLive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-already-live")

	now := time.Now().UTC()
	require.NoError(t, db.UpsertStream(ctx, &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "x123",
		Status: model.StreamLive, ViewerCount: 10, PeakViewerCount: 10,
		DetectedAt: now, LastCheckedAt: now,
	}))

	require.NoError(t, db.ApplyStreamUpdate(ctx, model.PlatformHelix, model.StreamUpdate{
		PlatformStreamID: "x123", ViewerCount: 20, Status: model.StreamLive, LastCheckedAt: now.Add(time.Minute),
	}))

	got, err := db.getStreamByPlatformID(ctx, channelID, "x123")
	require.NoError(t, err)
	assert.Nil(t, got.StartTime, "a LIVE->LIVE update must not fabricate a start_time")
}

func TestArchiveOlderThan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	channelID := seedChannelForStreams(t, db, ctx, "chan-6")

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, db.UpsertStream(ctx, &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "old-stream",
		Status: model.StreamEnded, EndTime: &old, DetectedAt: old, LastCheckedAt: old,
	}))

	recent := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, db.UpsertStream(ctx, &model.Stream{
		ChannelID: channelID, Platform: model.PlatformHelix, PlatformStreamID: "recent-stream",
		Status: model.StreamEnded, EndTime: &recent, DetectedAt: recent, LastCheckedAt: recent,
	}))

	n, err := db.ArchiveOlderThan(ctx, time.Now().UTC().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deleted, err := db.getStreamByPlatformID(ctx, channelID, "old-stream")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	got, err := db.getStreamByPlatformID(ctx, channelID, "recent-stream")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
