// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Command streamaggregator runs the ingestion engine: serve starts the
// discovery/liveness/maintenance scheduler and the ops HTTP surface, migrate
// opens the catalog to apply its schema, and seed loads a pre-vetted channel
// allowlist (spec.md §4.6). The teacher's cmd/server is a single flag-free
// main(); this spec's three distinct operational modes warrant splitting
// them into subcommands instead.
package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/streamaggregator/internal/logging"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "streamaggregator",
		Short:         "Platform-agnostic live stream aggregation ingestion engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newSeedCommand())

	return root
}

// Execute runs the root command, logging and translating any error into a
// non-zero process exit via main.
func Execute() error {
	if err := newRootCommand().Execute(); err != nil {
		logging.Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}
