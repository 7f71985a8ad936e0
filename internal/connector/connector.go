// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package connector defines the platform-agnostic interface every upstream
// adapter (internal/platform/helix, internal/platform/torrent) implements,
// plus the Governor that enforces quota/rate governance and circuit
// breaking in front of it.
package connector

import (
	"context"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
)

// Connector is the platform-agnostic surface the scheduler drives.
// Implementations translate a specific upstream's wire format into the
// canonical types in internal/catalog/model at the boundary (spec.md §4.1).
type Connector interface {
	// Platform identifies which closed-enum platform this connector serves.
	Platform() model.Platform

	// Authenticate establishes or refreshes upstream credentials. Called
	// once at startup and again after an authentication failure.
	Authenticate(ctx context.Context) error

	// Discover runs the expensive, infrequent discovery heuristic (keyword
	// search, category scan, or feed-hint revalidation) and returns newly
	// or currently matching streams (spec.md §4.7).
	Discover(ctx context.Context, keywords []string) ([]model.Stream, error)

	// CheckLiveness runs the cheap, frequent liveness heuristic against a
	// batch of already-known platform stream ids (spec.md §4.3).
	CheckLiveness(ctx context.Context, platformStreamIDs []string) ([]model.StreamUpdate, error)

	// GetChannel fetches channel metadata used to populate/refresh the
	// catalog's Channel rows.
	GetChannel(ctx context.Context, platformChannelID string) (*model.Channel, error)
}
