// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/logging"
	"github.com/tomtom215/streamaggregator/internal/metrics"
	"github.com/tomtom215/streamaggregator/internal/scoring"
)

// discoveryTask implements suture.Service for one platform's discovery
// loop (spec.md §4.3 "A discovery task"). It ticks every interval, driving
// an initial run immediately on Serve, matching
// internal/sync/plex_session_poller.go's pollLoop shape. A single
// goroutine runs the loop, so runs for this (platform, discovery) pair
// never overlap; a tick firing while a run is still in flight is simply
// not read until the run's select loop comes back around, coalescing it.
type discoveryTask struct {
	platform    model.Platform
	connector   connector.Connector
	governor    *connector.Governor
	store       catalog.Store
	keywords    []string
	interval    time.Duration
	taskTimeout time.Duration
	trust       scoring.TrustConfig
}

func newDiscoveryTask(platform model.Platform, conn connector.Connector, gov *connector.Governor, store catalog.Store, keywords []string, interval, taskTimeout time.Duration, trust scoring.TrustConfig) *discoveryTask {
	return &discoveryTask{
		platform:    platform,
		connector:   conn,
		governor:    gov,
		store:       store,
		keywords:    keywords,
		interval:    interval,
		taskTimeout: taskTimeout,
		trust:       trust,
	}
}

func (t *discoveryTask) String() string {
	return fmt.Sprintf("discovery(%s)", t.platform)
}

func (t *discoveryTask) Serve(ctx context.Context) error {
	t.run(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.run(ctx)
		}
	}
}

func (t *discoveryTask) run(ctx context.Context) {
	start := time.Now()
	taskCtx, cancel := context.WithTimeout(ctx, t.taskTimeout)
	defer cancel()

	before := t.governor.StatusInfo().QuotaConsumed
	err := t.discover(taskCtx)
	after := t.governor.StatusInfo().QuotaConsumed

	metrics.RecordTask("discovery", string(t.platform), time.Since(start), err)

	rec := model.ApiUsageRecord{
		Platform:      t.platform,
		Endpoint:      "discover",
		UnitsConsumed: after - before,
		Success:       err == nil,
		At:            start,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
		logging.Warn().Str("platform", string(t.platform)).Err(err).Msg("discovery task failed")
	}
	if usageErr := t.store.RecordUsage(ctx, rec); usageErr != nil {
		logging.Warn().Str("platform", string(t.platform)).Err(usageErr).Msg("failed to record discovery usage")
	}
}

// discover implements spec.md §4.3's discovery task body. Step 1
// (is_operational) and step 2 (minimum-interval guard for expensive
// platforms) live inside the connector's own Discover, since both are
// connector-local state (the governor and, for Helix, lastSearchAt).
func (t *discoveryTask) discover(ctx context.Context) error {
	streams, err := t.connector.Discover(ctx, t.keywords)
	if err != nil {
		return fmt.Errorf("scheduler: discover(%s): %w", t.platform, err)
	}

	now := time.Now().UTC()
	for i := range streams {
		s := streams[i]
		channel, err := t.resolveChannel(ctx, s.PlatformChannelID, now)
		if err != nil {
			logging.Warn().Str("platform", string(t.platform)).Str("platform_channel_id", s.PlatformChannelID).Err(err).Msg("skipping stream with unresolvable channel")
			continue
		}
		s.ChannelID = channel.ID
		if err := t.store.UpsertStream(ctx, &s); err != nil {
			logging.Warn().Str("platform", string(t.platform)).Str("platform_stream_id", s.PlatformStreamID).Err(err).Msg("failed to upsert discovered stream")
			metrics.RecordCatalogUpsert("stream", "error")
			continue
		}
		metrics.RecordCatalogUpsert("stream", "upserted")
	}
	return nil
}

// resolveChannel looks up a channel by its platform identity, minting it
// via the connector's GetChannel plus a trust-score computation on first
// sight. Grounded on spec.md §4.3 step 4 ("perform an upsert through the
// catalog") generalized to cover the channel side of that upsert, since
// Stream.PlatformChannelID (see internal/catalog/model) only carries the
// upstream's own channel id, never the catalog's internal one.
func (t *discoveryTask) resolveChannel(ctx context.Context, platformChannelID string, now time.Time) (*model.Channel, error) {
	existing, err := t.store.GetChannel(ctx, t.platform, platformChannelID)
	if err != nil {
		return nil, fmt.Errorf("lookup channel: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	channel, err := t.connector.GetChannel(ctx, platformChannelID)
	if err != nil {
		return nil, fmt.Errorf("fetch channel metadata: %w", err)
	}

	isSeed, err := t.store.IsSeedChannel(ctx, t.platform, platformChannelID)
	if err != nil {
		return nil, fmt.Errorf("check seed allowlist: %w", err)
	}
	channel.TrustScore = scoring.TrustScore(channel, now, isSeed, t.trust)
	channel.PollingPriority = scoring.PollingPriority(channel, now)

	if err := t.store.UpsertChannel(ctx, channel); err != nil {
		metrics.RecordCatalogUpsert("channel", "error")
		return nil, fmt.Errorf("upsert channel: %w", err)
	}
	metrics.RecordCatalogUpsert("channel", "upserted")
	return channel, nil
}
