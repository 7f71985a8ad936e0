// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/logging"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the catalog database and apply its schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

// runMigrate just opens and closes the catalog. catalog.New creates tables
// and indexes on open (internal/catalog/duckdb.go's initialize), so there is
// no separate migration step to run — this subcommand exists to let an
// operator provision the database file before the first serve.
func runMigrate() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	store, err := catalog.New(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logging.Error().Err(cerr).Msg("error closing catalog")
		}
	}()

	logging.Info().Str("path", cfg.Catalog.Path).Msg("catalog schema is up to date")
	return nil
}
