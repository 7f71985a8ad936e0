// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0

// Package model defines the canonical, cross-platform data types the
// ingestion engine operates on. Upstream wire formats are known only to the
// platform adapters under internal/platform, which convert into these types
// at the boundary.
package model

import (
	"fmt"
	"time"
)

// Platform is a closed enumeration of supported upstreams. Unknown values
// must be rejected at the boundary (see ParsePlatform).
type Platform string

const (
	PlatformHelix   Platform = "helix"
	PlatformTorrent Platform = "torrent"
)

// ParsePlatform validates a raw platform string against the closed set.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformHelix, PlatformTorrent:
		return p, nil
	default:
		return "", fmt.Errorf("model: unknown platform %q", s)
	}
}

func (p Platform) Valid() bool {
	switch p {
	case PlatformHelix, PlatformTorrent:
		return true
	default:
		return false
	}
}

// StreamStatus is the lifecycle state of a Stream. The lifecycle is a DAG:
// UPCOMING -> LIVE -> ENDED, with REMOVED reachable from any state.
// ENDED and REMOVED are terminal and are never re-entered as LIVE for the
// same (platform, platform_stream_id) pair.
type StreamStatus string

const (
	StreamLive     StreamStatus = "LIVE"
	StreamUpcoming StreamStatus = "UPCOMING"
	StreamEnded    StreamStatus = "ENDED"
	StreamRemoved  StreamStatus = "REMOVED"
)

func (s StreamStatus) Terminal() bool {
	return s == StreamEnded || s == StreamRemoved
}

func (s StreamStatus) Valid() bool {
	switch s {
	case StreamLive, StreamUpcoming, StreamEnded, StreamRemoved:
		return true
	default:
		return false
	}
}

// DiscoveryMethod tags how a Stream was surfaced by a connector (spec §4.7).
type DiscoveryMethod string

const (
	DiscoverySearch     DiscoveryMethod = "search"
	DiscoveryRSS        DiscoveryMethod = "rss"
	DiscoverySubmission DiscoveryMethod = "submission"
	DiscoverySignal     DiscoveryMethod = "signal"
)

// PollingPriority bins a Channel into a liveness-polling tier (§4.6).
type PollingPriority string

const (
	PriorityHigh   PollingPriority = "HIGH"
	PriorityMedium PollingPriority = "MEDIUM"
	PriorityLow    PollingPriority = "LOW"
	PriorityDead   PollingPriority = "DEAD"
)

// PollingInterval returns the default re-poll cadence for the priority tier.
func (p PollingPriority) PollingInterval() time.Duration {
	switch p {
	case PriorityHigh:
		return 2 * time.Minute
	case PriorityMedium:
		return 30 * time.Minute
	case PriorityLow:
		return 6 * time.Hour
	default: // PriorityDead and anything unrecognized
		return 24 * time.Hour
	}
}

// Channel is the broadcaster identity on a platform. Identity is
// (Platform, PlatformChannelID); ID is an internal opaque id minted on
// first sight.
type Channel struct {
	ID                string
	Platform          Platform
	PlatformChannelID string
	DisplayName       string
	AvatarURL         string
	TrustScore        float64
	SubscriberCount   int64
	AccountCreatedAt  *time.Time
	LastScrapedAt     *time.Time
	LastLiveAt        *time.Time
	PollingPriority   PollingPriority
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Geo is the coarse, city-level geolocation attached to a Stream.
type Geo struct {
	City    string
	Region  string
	Country string
}

// Stream is a specific live broadcast on a platform. Identity is
// (ChannelID, PlatformStreamID).
type Stream struct {
	ID        string
	ChannelID string
	// PlatformChannelID is populated by adapters at discovery time, before
	// the scheduler has resolved ChannelID via the catalog. It is not a
	// catalog column; ApplyStreamUpdate/UpsertStream key off ChannelID once
	// the scheduler has filled it in.
	PlatformChannelID string
	Platform          Platform
	PlatformStreamID  string
	Title             string
	Description       string
	ThumbnailURL      string
	EmbedURL          string
	Status            StreamStatus
	ViewerCount       int64
	PeakViewerCount   int64
	StartTime         *time.Time
	EndTime           *time.Time
	DetectedAt        time.Time
	LastCheckedAt     time.Time
	MatchedKeywords   []string
	Language          string
	Geo               Geo
	IsHidden          bool
	ReportCount       int
	DiscoveryMethod   DiscoveryMethod
	ConsecutiveMisses int
}

// Validate enforces the structural invariants spec.md §3 requires of a
// Stream before it is handed to the catalog.
func (s *Stream) Validate() error {
	if !s.Platform.Valid() {
		return fmt.Errorf("model: stream %q has invalid platform %q", s.PlatformStreamID, s.Platform)
	}
	if s.PlatformStreamID == "" {
		return fmt.Errorf("model: stream has empty platform_stream_id")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("model: stream %q has invalid status %q", s.PlatformStreamID, s.Status)
	}
	if s.PeakViewerCount < s.ViewerCount {
		return fmt.Errorf("model: stream %q peak_viewer_count %d < viewer_count %d", s.PlatformStreamID, s.PeakViewerCount, s.ViewerCount)
	}
	if s.Status.Terminal() && s.EndTime == nil {
		return fmt.Errorf("model: stream %q in terminal status %q has no end_time", s.PlatformStreamID, s.Status)
	}
	if !s.Status.Terminal() && s.EndTime != nil {
		return fmt.Errorf("model: stream %q in status %q has non-null end_time", s.PlatformStreamID, s.Status)
	}
	if s.DetectedAt.After(s.LastCheckedAt) {
		return fmt.Errorf("model: stream %q detected_at after last_checked_at", s.PlatformStreamID)
	}
	return nil
}

// DedupeKeywords normalizes MatchedKeywords into a duplicate-free set that
// keeps first-seen order, per spec.md §3's "matched_keywords is a set" invariant.
func DedupeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// StreamUpdate is the ephemeral value produced by a liveness poll. It is
// never persisted directly; catalog's ApplyStreamUpdate folds it into a
// Stream row.
type StreamUpdate struct {
	PlatformStreamID string
	ViewerCount       int64
	Status            StreamStatus
	LastCheckedAt     time.Time
}

// ApiUsageRecord is an immutable audit row for one upstream call.
type ApiUsageRecord struct {
	Platform        Platform
	Endpoint        string
	UnitsConsumed   int
	Success         bool
	ErrorMessage    string
	At              time.Time
}

// Follow is a device's subscription to a Channel.
type Follow struct {
	DeviceID  string
	ChannelID string
	CreatedAt time.Time
}

// Report is a device's flag against a Stream.
type Report struct {
	StreamID  string
	DeviceID  string
	Reason    string
	Notes     string
	CreatedAt time.Time
}

// SeedChannel is a pre-vetted channel loaded at deploy time, used to
// override the history component of trust scoring (§4.6).
type SeedChannel struct {
	Platform          Platform
	PlatformChannelID string
	Category          string
	Priority          string
}
