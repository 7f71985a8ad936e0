// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/logging"
	"github.com/tomtom215/streamaggregator/internal/ops"
	"github.com/tomtom215/streamaggregator/internal/platform/helix"
	"github.com/tomtom215/streamaggregator/internal/platform/torrent"
	"github.com/tomtom215/streamaggregator/internal/scheduler"
)

// Liveness batch sizes mirror the adapters' own internal batching
// (internal/platform/helix.listBatchSize, internal/platform/torrent.liveBatchSize)
// so units_consumed accounting (spec.md §4.3 step 6) reflects how many IDs
// each CheckLiveness call actually covers per request.
const (
	helixLivenessBatchSize   = 50
	torrentLivenessBatchSize = 100
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the discovery/liveness/maintenance scheduler and the ops HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parentCtx context.Context) error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().Msg("starting streamaggregator")

	store, err := catalog.New(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logging.Error().Err(cerr).Msg("error closing catalog")
		}
	}()

	platforms, governors, err := buildPlatforms(parentCtx, cfg)
	if err != nil {
		return err
	}
	if hp, ok := platforms[model.PlatformHelix]; ok {
		if hc, ok := hp.Connector.(*helix.Connector); ok {
			seeds, err := store.SeedChannels(parentCtx)
			if err != nil {
				return fmt.Errorf("load seed channels: %w", err)
			}
			var ids []string
			for _, s := range seeds {
				if s.Platform == model.PlatformHelix {
					ids = append(ids, s.PlatformChannelID)
				}
			}
			hc.SetRSSSeedChannelIDs(ids)
		}
	}

	sched, err := scheduler.Build(cfg.Scheduler, cfg.Trust, cfg.Catalog.ArchiveAfter, store, platforms, scheduler.DefaultConfig())
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	opsServer := ops.NewHTTPServer(cfg.Server, ops.Router(store, governors))
	opsService := ops.NewService(opsServer, 10*time.Second)

	root := suture.New("streamaggregator", suture.Spec{})
	root.Add(sched.Root())
	root.Add(opsService)

	runCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := root.ServeBackground(runCtx)

	select {
	case <-runCtx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor exited with error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor error during shutdown")
		}
	}

	unstopped, _ := root.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("streamaggregator stopped")
	return nil
}

// buildPlatforms authenticates and wires a connector.Governor and
// scheduler.PlatformConnector for every platform enabled in cfg.
func buildPlatforms(ctx context.Context, cfg *config.Config) (map[model.Platform]scheduler.PlatformConnector, map[model.Platform]*connector.Governor, error) {
	platforms := make(map[model.Platform]scheduler.PlatformConnector)
	governors := make(map[model.Platform]*connector.Governor)

	if cfg.Helix.Enabled {
		gov := connector.NewGovernor(connector.GovernorConfig{Name: "helix", QuotaLimit: cfg.Helix.DailyQuota})
		conn := helix.New(cfg.Helix, gov)
		if err := conn.Authenticate(ctx); err != nil {
			return nil, nil, fmt.Errorf("authenticate helix: %w", err)
		}
		governors[model.PlatformHelix] = gov
		platforms[model.PlatformHelix] = scheduler.PlatformConnector{
			Connector:         conn,
			Governor:          gov,
			Keywords:          cfg.Helix.SearchKeywords,
			LivenessBatchSize: helixLivenessBatchSize,
		}
	}

	if cfg.Torrent.Enabled {
		gov := connector.NewGovernor(connector.GovernorConfig{Name: "torrent"})
		conn := torrent.New(cfg.Torrent, gov)
		if err := conn.Authenticate(ctx); err != nil {
			return nil, nil, fmt.Errorf("authenticate torrent: %w", err)
		}
		governors[model.PlatformTorrent] = gov
		platforms[model.PlatformTorrent] = scheduler.PlatformConnector{
			Connector:         conn,
			Governor:          gov,
			Keywords:          cfg.Torrent.Keywords,
			LivenessBatchSize: torrentLivenessBatchSize,
		}
	}

	if len(platforms) == 0 {
		return nil, nil, fmt.Errorf("no platform enabled: set helix.enabled or torrent.enabled")
	}

	return platforms, governors, nil
}
