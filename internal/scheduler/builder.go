// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package scheduler

import (
	"fmt"
	"time"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/scoring"
)

// PlatformConnector pairs a connector with the Governor guarding it, the
// default keywords to discover with, and the batch size its CheckLiveness
// uses (for the units_consumed accounting spec.md §4.3 step 6 requires).
type PlatformConnector struct {
	Connector         connector.Connector
	Governor          *connector.Governor
	Keywords          []string
	LivenessBatchSize int
}

// Build wires a Scheduler from config plus the already-constructed
// connectors and catalog store: one discoveryTask and one livenessTask per
// platform, plus the three maintenance cron jobs. Callers authenticate
// connectors and seed Helix's RSS hint list before calling Build.
func Build(cfg config.SchedulerConfig, trust config.TrustConfig, archiveAfter time.Duration, store catalog.Store, platforms map[model.Platform]PlatformConnector, schedCfg Config) (*Scheduler, error) {
	if len(platforms) == 0 {
		return nil, fmt.Errorf("scheduler: no platforms configured")
	}

	trustCfg := scoring.TrustConfig{HistoryDefault: trust.HistoryDefault, HistorySeedOverride: trust.HistorySeedOverride}
	governors := make(map[model.Platform]*connector.Governor, len(platforms))
	for p, pc := range platforms {
		governors[p] = pc.Governor
	}

	s := New(schedCfg)

	for p, pc := range platforms {
		dt := newDiscoveryTask(p, pc.Connector, pc.Governor, store, pc.Keywords, cfg.DiscoveryInterval, cfg.TaskTimeLimit, trustCfg)
		s.AddDiscovery(dt)

		batchSize := pc.LivenessBatchSize
		if batchSize <= 0 {
			batchSize = 1
		}
		lt := newLivenessTask(p, pc.Connector, pc.Governor, store, cfg.LivenessInterval, cfg.TaskTimeLimit, batchSize, cfg.MissesBeforeEnded)
		s.AddLiveness(lt)
	}

	maintCfg := schedulerMaintenanceConfig{
		quotaResetCron:      cfg.QuotaResetCron,
		priorityRefreshCron: cfg.PriorityRefreshCron,
		archiveCron:         cfg.ArchiveCron,
	}
	runner, err := newMaintenanceRunner(maintCfg, store, governors, archiveAfter, cfg.TaskTimeLimit)
	if err != nil {
		return nil, err
	}
	s.AddMaintenance(runner)

	return s, nil
}
