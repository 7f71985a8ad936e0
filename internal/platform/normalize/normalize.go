// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package normalize holds the small set of conversions every platform
// adapter needs at the upstream boundary: templated thumbnail URLs to a
// fixed size, upstream ISO-8601 timestamps to UTC, and keyword matching
// against a stream's title/description (spec.md §6, §8).
package normalize

import (
	"strconv"
	"strings"
	"time"
)

// ThumbnailWidth and ThumbnailHeight are the fixed dimensions every
// adapter substitutes into a templated thumbnail URL (spec.md §6).
const (
	ThumbnailWidth  = 1280
	ThumbnailHeight = 720
)

var thumbnailReplacer = strings.NewReplacer(
	"{width}", strconv.Itoa(ThumbnailWidth),
	"{height}", strconv.Itoa(ThumbnailHeight),
)

// ThumbnailURL substitutes a platform's `{width}`/`{height}` template
// placeholders with the fixed 1280x720 size. URLs with no placeholders
// (e.g. Helix's discrete default/high thumbnail variants) pass through
// unchanged.
func ThumbnailURL(raw string) string {
	return thumbnailReplacer.Replace(raw)
}

// Timestamp parses an upstream ISO-8601 timestamp and converts it to UTC.
// Adapters must never surface a non-UTC time to the catalog (spec.md §6).
func Timestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// MatchedKeywords returns the distinct, case-insensitive substring matches
// of keywords against text, in the order the keywords were supplied. This
// is the discovery-time match count spec.md §8 holds invariant against
// Stream.MatchedKeywords.
func MatchedKeywords(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	seen := make(map[string]struct{}, len(keywords))
	var matched []string
	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		if kwLower == "" {
			continue
		}
		if _, ok := seen[kwLower]; ok {
			continue
		}
		if strings.Contains(lower, kwLower) {
			seen[kwLower] = struct{}{}
			matched = append(matched, kw)
		}
	}
	return matched
}
