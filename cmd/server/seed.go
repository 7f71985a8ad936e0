// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/logging"
)

func newSeedCommand() *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a pre-vetted channel allowlist into the catalog (spec.md §4.6)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), filePath)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to a seed channels YAML file (defaults to trust.seed_channels_path)")

	return cmd
}

// seedFile is the on-disk shape of a seed channels YAML file: a flat list of
// pre-vetted channels, each overriding the history component of trust
// scoring for its (platform, platform_channel_id) pair.
type seedFile struct {
	Channels []struct {
		Platform          model.Platform `yaml:"platform"`
		PlatformChannelID string         `yaml:"platform_channel_id"`
		Category          string         `yaml:"category"`
		Priority          string         `yaml:"priority"`
	} `yaml:"channels"`
}

// resolveSeedFilePath prefers an explicit --file flag over the configured
// default, and fails if neither is set.
func resolveSeedFilePath(configuredPath, flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if configuredPath != "" {
		return configuredPath, nil
	}
	return "", fmt.Errorf("no seed file given: pass --file or set trust.seed_channels_path")
}

func runSeed(ctx context.Context, filePath string) error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	filePath, err = resolveSeedFilePath(cfg.Trust.SeedChannelsPath, filePath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var parsed seedFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	store, err := catalog.New(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logging.Error().Err(cerr).Msg("error closing catalog")
		}
	}()

	for _, c := range parsed.Channels {
		sc := model.SeedChannel{
			Platform:          c.Platform,
			PlatformChannelID: c.PlatformChannelID,
			Category:          c.Category,
			Priority:          c.Priority,
		}
		if err := store.SeedChannel(ctx, sc); err != nil {
			return fmt.Errorf("seed channel %s/%s: %w", sc.Platform, sc.PlatformChannelID, err)
		}
	}

	logging.Info().Int("count", len(parsed.Channels)).Str("file", filePath).Msg("seed channels loaded")
	return nil
}
