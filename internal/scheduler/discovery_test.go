// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/scoring"
)

// fakeStore is an in-memory catalog.Store double used to unit-test task
// bodies without a DuckDB connection.
type fakeStore struct {
	mu sync.Mutex

	channels map[string]*model.Channel
	streams  map[string]*model.Stream
	usage    []model.ApiUsageRecord
	liveIDs  []string
	isSeed   bool

	markMissingSeenIDs []string
	refreshCalled      bool
	archiveCalled      bool

	upsertChannelErr error
	getChannelErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels: make(map[string]*model.Channel),
		streams:  make(map[string]*model.Stream),
	}
}

func channelKey(platform model.Platform, platformChannelID string) string {
	return string(platform) + "|" + platformChannelID
}

func (f *fakeStore) UpsertChannel(_ context.Context, ch *model.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertChannelErr != nil {
		return f.upsertChannelErr
	}
	if ch.ID == "" {
		ch.ID = fmt.Sprintf("chan-%d", len(f.channels)+1)
	}
	f.channels[channelKey(ch.Platform, ch.PlatformChannelID)] = ch
	return nil
}

func (f *fakeStore) GetChannel(_ context.Context, platform model.Platform, platformChannelID string) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getChannelErr != nil {
		return nil, f.getChannelErr
	}
	return f.channels[channelKey(platform, platformChannelID)], nil
}

func (f *fakeStore) ChannelsByPriority(_ context.Context, _ model.Platform, _ model.PollingPriority) ([]model.Channel, error) {
	return nil, nil
}

func (f *fakeStore) RefreshPollingPriorities(_ context.Context, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalled = true
	return 0, nil
}

func (f *fakeStore) UpsertStream(_ context.Context, s *model.Stream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == "" {
		s.ID = fmt.Sprintf("stream-%d", len(f.streams)+1)
	}
	cp := *s
	f.streams[s.PlatformStreamID] = &cp
	return nil
}

func (f *fakeStore) ApplyStreamUpdate(_ context.Context, _ model.Platform, upd model.StreamUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[upd.PlatformStreamID]
	if !ok {
		return fmt.Errorf("unknown stream %s", upd.PlatformStreamID)
	}
	s.Status = upd.Status
	s.ViewerCount = upd.ViewerCount
	s.LastCheckedAt = upd.LastCheckedAt
	return nil
}

func (f *fakeStore) LiveStreamIDs(_ context.Context, _ model.Platform) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.liveIDs...), nil
}

func (f *fakeStore) MarkMissingAsEnded(_ context.Context, _ model.Platform, seenIDs []string, _ int, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markMissingSeenIDs = append([]string(nil), seenIDs...)
	return 0, nil
}

func (f *fakeStore) ArchiveOlderThan(_ context.Context, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveCalled = true
	return 0, nil
}

func (f *fakeStore) RecordUsage(_ context.Context, rec model.ApiUsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage = append(f.usage, rec)
	return nil
}

func (f *fakeStore) RecordFollow(_ context.Context, _ model.Follow) error { return nil }

func (f *fakeStore) RecordReport(_ context.Context, _ model.Report, _ int) error { return nil }

func (f *fakeStore) SeedChannel(_ context.Context, _ model.SeedChannel) error { return nil }

func (f *fakeStore) SeedChannels(_ context.Context) ([]model.SeedChannel, error) { return nil, nil }

func (f *fakeStore) IsSeedChannel(_ context.Context, _ model.Platform, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isSeed, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeConnector is an in-memory connector.Connector double.
type fakeConnector struct {
	platform        model.Platform
	discoverStreams []model.Stream
	discoverErr     error
	livenessUpdates []model.StreamUpdate
	livenessErr     error
	channel         *model.Channel
	channelErr      error
}

func (c *fakeConnector) Platform() model.Platform { return c.platform }

func (c *fakeConnector) Authenticate(_ context.Context) error { return nil }

func (c *fakeConnector) Discover(_ context.Context, _ []string) ([]model.Stream, error) {
	return c.discoverStreams, c.discoverErr
}

func (c *fakeConnector) CheckLiveness(_ context.Context, _ []string) ([]model.StreamUpdate, error) {
	return c.livenessUpdates, c.livenessErr
}

func (c *fakeConnector) GetChannel(_ context.Context, platformChannelID string) (*model.Channel, error) {
	if c.channelErr != nil {
		return nil, c.channelErr
	}
	cp := *c.channel
	cp.PlatformChannelID = platformChannelID
	return &cp, nil
}

func testTrustConfig() scoring.TrustConfig {
	return scoring.TrustConfig{HistoryDefault: 0.5, HistorySeedOverride: 1.0}
}

func TestDiscoveryTaskRunMintsChannelAndUpsertsStream(t *testing.T) {
	store := newFakeStore()
	conn := &fakeConnector{
		platform: model.PlatformHelix,
		discoverStreams: []model.Stream{
			{
				Platform:          model.PlatformHelix,
				PlatformChannelID: "chan1",
				PlatformStreamID:  "vid1",
				Status:            model.StreamLive,
				DetectedAt:        time.Now().UTC(),
				LastCheckedAt:     time.Now().UTC(),
			},
		},
		channel: &model.Channel{Platform: model.PlatformHelix, DisplayName: "Breaking Now"},
	}
	gov := connector.NewGovernor(connector.GovernorConfig{Name: "helix-test"})

	task := newDiscoveryTask(model.PlatformHelix, conn, gov, store, nil, time.Hour, 5*time.Second, testTrustConfig())
	task.run(context.Background())

	require.Len(t, store.streams, 1)
	s := store.streams["vid1"]
	require.NotEmpty(t, s.ChannelID)
	require.Len(t, store.channels, 1)
	require.Len(t, store.usage, 1)
	assert.True(t, store.usage[0].Success)
	assert.Equal(t, "discover", store.usage[0].Endpoint)
}

func TestDiscoveryTaskRunReusesExistingChannel(t *testing.T) {
	store := newFakeStore()
	existing := &model.Channel{ID: "chan-existing", Platform: model.PlatformHelix, PlatformChannelID: "chan1"}
	store.channels[channelKey(model.PlatformHelix, "chan1")] = existing

	conn := &fakeConnector{
		platform: model.PlatformHelix,
		discoverStreams: []model.Stream{
			{Platform: model.PlatformHelix, PlatformChannelID: "chan1", PlatformStreamID: "vid1", Status: model.StreamLive, DetectedAt: time.Now().UTC(), LastCheckedAt: time.Now().UTC()},
		},
		channel: &model.Channel{Platform: model.PlatformHelix, DisplayName: "should not be used"},
	}
	gov := connector.NewGovernor(connector.GovernorConfig{Name: "helix-test"})

	task := newDiscoveryTask(model.PlatformHelix, conn, gov, store, nil, time.Hour, 5*time.Second, testTrustConfig())
	task.run(context.Background())

	require.Len(t, store.channels, 1)
	assert.Equal(t, "chan-existing", store.streams["vid1"].ChannelID)
}

func TestDiscoveryTaskRunRecordsUsageOnDiscoverError(t *testing.T) {
	store := newFakeStore()
	conn := &fakeConnector{platform: model.PlatformHelix, discoverErr: errDiscoverFailed}
	gov := connector.NewGovernor(connector.GovernorConfig{Name: "helix-test"})

	task := newDiscoveryTask(model.PlatformHelix, conn, gov, store, nil, time.Hour, 5*time.Second, testTrustConfig())
	task.run(context.Background())

	require.Len(t, store.usage, 1)
	assert.False(t, store.usage[0].Success)
	assert.NotEmpty(t, store.usage[0].ErrorMessage)
}

var errDiscoverFailed = fmt.Errorf("discover failed")
