// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package scoring computes the pure, deterministic trust/relevance/priority
// scores the catalog uses to rank channels and streams (spec.md §4.6). No
// function here performs I/O; callers supply the inputs read from the
// catalog store.
package scoring

import (
	"math"
	"time"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
)

// Trust score component weights. Sum to 1.0.
const (
	trustWeightAge     = 0.3
	trustWeightReach   = 0.3
	trustWeightHistory = 0.4
)

// Relevance score component weights. Sum to 1.0.
const (
	relevanceWeightTrust    = 0.3
	relevanceWeightViewers  = 0.4
	relevanceWeightKeywords = 0.3
)

// ageNormalizationDays is the account age, in days, past which the age
// component saturates at 1.0.
const ageNormalizationDays = 365.0

// reachNormalizationExponent sizes the log10 denominator for the
// subscriber-count reach component: log10(subs) saturates at 1.0 once subs
// reaches 10^5.
const reachNormalizationExponent = 5.0

// viewerNormalizationExponent sizes the log10 denominator for the
// current-viewer relevance component: saturates at 1.0 once viewers
// reaches 10^4.
const viewerNormalizationExponent = 4.0

// maxRelevantKeywordMatches is the matched-keyword count past which the
// keyword relevance component saturates at 1.0.
const maxRelevantKeywordMatches = 3.0

// TrustConfig carries the two knobs trust scoring needs from
// internal/config that aren't intrinsic to a single channel: the default
// history component, and the override applied to seed-listed channels.
type TrustConfig struct {
	HistoryDefault      float64
	HistorySeedOverride float64
}

// TrustScore computes a channel's trust score in [0, 1]:
//
//	trust = 0.3*age + 0.3*reach + 0.4*history
//
// age = min(1, account_age_days / 365)
// reach = min(1, log10(max(1, subscribers)) / 5)
// history defaults to cfg.HistoryDefault (0.5 at MVP); channels on the
// seed allowlist get cfg.HistorySeedOverride (1.0) instead (spec.md §4.6).
//
// Worked example: a channel created 180 days ago with 2,000 subscribers
// and no seed override: age = 180/365 = 0.493, reach = log10(2000)/5 =
// 0.660, history = 0.5. trust = 0.3*0.493 + 0.3*0.660 + 0.4*0.5 = 0.546,
// rounded to 0.55.
func TrustScore(ch *model.Channel, now time.Time, isSeedChannel bool, cfg TrustConfig) float64 {
	age := ageComponent(ch.AccountCreatedAt, now)
	reach := reachComponent(ch.SubscriberCount)
	history := cfg.HistoryDefault
	if isSeedChannel {
		history = cfg.HistorySeedOverride
	}

	trust := trustWeightAge*age + trustWeightReach*reach + trustWeightHistory*history
	return round2(trust)
}

func ageComponent(createdAt *time.Time, now time.Time) float64 {
	if createdAt == nil {
		return 0
	}
	days := now.Sub(*createdAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Min(1, days/ageNormalizationDays)
}

func reachComponent(subscribers int64) float64 {
	s := float64(subscribers)
	if s < 1 {
		s = 1
	}
	return math.Min(1, math.Log10(s)/reachNormalizationExponent)
}

// RelevanceScore computes a stream's relevance score in [0, 1]:
//
//	relevance = 0.3*trust + 0.4*viewers + 0.3*keywords
//
// viewers = min(1, log10(max(1, viewer_count)) / 4)
// keywords = min(1, matched_keyword_count / 3)
//
// Worked example: trust 0.55, 800 viewers, 2 matched keywords:
// viewers = log10(800)/4 = 0.726, keywords = 2/3 = 0.667.
// relevance = 0.3*0.55 + 0.4*0.726 + 0.3*0.667 = 0.655, rounded to 0.66.
func RelevanceScore(channelTrust float64, viewerCount int64, matchedKeywords []string) float64 {
	viewers := viewerComponent(viewerCount)
	keywords := keywordComponent(matchedKeywords)

	relevance := relevanceWeightTrust*channelTrust + relevanceWeightViewers*viewers + relevanceWeightKeywords*keywords
	return round2(relevance)
}

func viewerComponent(viewers int64) float64 {
	v := float64(viewers)
	if v < 1 {
		v = 1
	}
	return math.Min(1, math.Log10(v)/viewerNormalizationExponent)
}

func keywordComponent(matched []string) float64 {
	return math.Min(1, float64(len(matched))/maxRelevantKeywordMatches)
}

// Polling priority bin thresholds (spec.md §4.6), measured against time
// since the channel's LastLiveAt.
const (
	highPriorityWithin   = 24 * time.Hour
	mediumPriorityWithin = 7 * 24 * time.Hour
	lowPriorityWithin    = 30 * 24 * time.Hour
)

// PollingPriority bins a channel into a liveness-polling tier based on how
// recently it was last seen live. A channel that has never been live
// (LastLiveAt nil) is MEDIUM, matching spec.md's "unknown" bucket — it
// hasn't proven itself dead, so it isn't deprioritized to LOW/DEAD yet.
//
//	< 24h  -> HIGH
//	< 7d   -> MEDIUM
//	< 30d  -> LOW
//	older  -> DEAD
//
// The tier is stored on the channel only; the scheduler's liveness loop
// does not read it and polls every LIVE stream at one fixed interval, so
// the tiers do not set per-channel polling cadences.
func PollingPriority(ch *model.Channel, now time.Time) model.PollingPriority {
	if ch.LastLiveAt == nil {
		return model.PriorityMedium
	}

	age := now.Sub(*ch.LastLiveAt)
	switch {
	case age < highPriorityWithin:
		return model.PriorityHigh
	case age < mediumPriorityWithin:
		return model.PriorityMedium
	case age < lowPriorityWithin:
		return model.PriorityLow
	default:
		return model.PriorityDead
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
