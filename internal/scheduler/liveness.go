// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/logging"
	"github.com/tomtom215/streamaggregator/internal/metrics"
)

// livenessTask implements suture.Service for one platform's liveness loop
// (spec.md §4.3 "A liveness task"). Same non-overlapping ticker-loop shape
// as discoveryTask.
type livenessTask struct {
	platform          model.Platform
	connector         connector.Connector
	governor          *connector.Governor
	store             catalog.Store
	interval          time.Duration
	taskTimeout       time.Duration
	batchSize         int
	missesBeforeEnded int
}

func newLivenessTask(platform model.Platform, conn connector.Connector, gov *connector.Governor, store catalog.Store, interval, taskTimeout time.Duration, batchSize, missesBeforeEnded int) *livenessTask {
	return &livenessTask{
		platform:          platform,
		connector:         conn,
		governor:          gov,
		store:             store,
		interval:          interval,
		taskTimeout:       taskTimeout,
		batchSize:         batchSize,
		missesBeforeEnded: missesBeforeEnded,
	}
}

func (t *livenessTask) String() string {
	return fmt.Sprintf("liveness(%s)", t.platform)
}

func (t *livenessTask) Serve(ctx context.Context) error {
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

func (t *livenessTask) run(ctx context.Context) {
	start := time.Now()
	taskCtx, cancel := context.WithTimeout(ctx, t.taskTimeout)
	defer cancel()

	units, err := t.checkLiveness(taskCtx)

	metrics.RecordTask("liveness", string(t.platform), time.Since(start), err)

	rec := model.ApiUsageRecord{
		Platform:      t.platform,
		Endpoint:      "check_liveness",
		UnitsConsumed: units,
		Success:       err == nil,
		At:            start,
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
		logging.Warn().Str("platform", string(t.platform)).Err(err).Msg("liveness task failed")
	}
	if usageErr := t.store.RecordUsage(ctx, rec); usageErr != nil {
		logging.Warn().Str("platform", string(t.platform)).Err(usageErr).Msg("failed to record liveness usage")
	}
}

// checkLiveness implements spec.md §4.3's liveness task body, returning the
// ceil(|ids|/batch_size) units_consumed the spec requires in the usage
// record.
func (t *livenessTask) checkLiveness(ctx context.Context) (int, error) {
	if !t.governor.IsOperational() {
		return 0, nil
	}

	ids, err := t.store.LiveStreamIDs(ctx, t.platform)
	if err != nil {
		return 0, fmt.Errorf("scheduler: live stream ids(%s): %w", t.platform, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	updates, err := t.connector.CheckLiveness(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("scheduler: check_liveness(%s): %w", t.platform, err)
	}

	for _, u := range updates {
		if err := t.store.ApplyStreamUpdate(ctx, t.platform, u); err != nil {
			logging.Warn().Str("platform", string(t.platform)).Str("platform_stream_id", u.PlatformStreamID).Err(err).Msg("failed to apply liveness update")
			metrics.RecordCatalogUpsert("stream", "error")
			continue
		}
		metrics.RecordCatalogUpsert("stream", "updated")
	}

	seenIDs := make([]string, 0, len(updates))
	for _, u := range updates {
		if u.Status == model.StreamLive {
			seenIDs = append(seenIDs, u.PlatformStreamID)
		}
	}
	if _, err := t.store.MarkMissingAsEnded(ctx, t.platform, seenIDs, t.missesBeforeEnded, time.Now().UTC()); err != nil {
		logging.Warn().Str("platform", string(t.platform)).Err(err).Msg("failed to mark missing streams as ended")
	}

	batchSize := t.batchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	units := int(math.Ceil(float64(len(ids)) / float64(batchSize)))
	return units, nil
}
