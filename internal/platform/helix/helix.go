// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package helix implements the quota-metered platform adapter: zero-cost RSS
// hint monitoring for seed channels, surgical keyword search (100 units per
// call), and batch validation for both discovery and liveness (1 unit per
// up-to-50 ids). Grounded on original_source/backend/connectors/youtube.py.
package helix

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/logging"
	"github.com/tomtom215/streamaggregator/internal/platform/normalize"
	"github.com/tomtom215/streamaggregator/internal/platform/retry"
)

const (
	defaultBaseURL = "https://helixdata.example.com/v3"

	searchUnitCost = 100
	listUnitCost   = 1
	listBatchSize  = 50

	maxErrorBodySize = 64 * 1024
)

// Option customizes a Connector at construction. WithBaseURL exists so tests
// can point the connector at an httptest.Server.
type Option func(*Connector)

// WithBaseURL overrides the upstream API root, defaulting to defaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Connector) { c.baseURL = u }
}

// WithHTTPClient overrides the http.Client, defaulting to a 15s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Connector) { c.httpClient = h }
}

// Connector implements connector.Connector for the quota-metered platform.
type Connector struct {
	cfg        config.HelixConfig
	baseURL    string
	httpClient *http.Client
	governor   *connector.Governor

	mu                sync.Mutex
	lastSearchAt      time.Time
	rssSeedChannelIDs []string
}

var _ connector.Connector = (*Connector)(nil)

// New builds a Helix connector. governor must already be configured with
// QuotaLimit set to cfg.DailyQuota.
func New(cfg config.HelixConfig, governor *connector.Governor, opts ...Option) *Connector {
	c := &Connector{
		cfg:      cfg,
		baseURL:  defaultBaseURL,
		governor: governor,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Connector) Platform() model.Platform { return model.PlatformHelix }

// SetRSSSeedChannelIDs replaces the set of seed channels Discover monitors
// via the zero-quota RSS path. The serve command calls this once at startup
// after loading catalog.Store.SeedChannels for this platform.
func (c *Connector) SetRSSSeedChannelIDs(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rssSeedChannelIDs = append([]string(nil), ids...)
}

// Authenticate validates that an API key is configured. The quota-metered
// upstream authenticates every request with a query-string key, so there is
// no handshake to perform up front (youtube.py's authenticate does the
// same: it stashes the key and returns, deferring any real validation to
// the first call).
func (c *Connector) Authenticate(_ context.Context) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("helix: no api key configured")
	}
	return nil
}

// Discover runs the RSS hint sweep (when RSSHintEnabled; zero quota cost
// beyond validation) and, if the search interval has elapsed, a keyword search.
// Candidate video ids from both paths are merged and validated in a single
// batch call before being converted to Streams. Quota exhaustion during
// either the search or the validation batch does not fail the call: it
// returns whatever candidates were already gathered and validated
// (spec.md §4.1).
func (c *Connector) Discover(ctx context.Context, keywords []string) ([]model.Stream, error) {
	if !c.governor.IsOperational() {
		return nil, nil
	}
	if len(keywords) == 0 {
		keywords = c.cfg.SearchKeywords
	}

	candidateIDs := make(map[string]model.DiscoveryMethod)

	if c.cfg.RSSHintEnabled {
		c.mu.Lock()
		seedIDs := append([]string(nil), c.rssSeedChannelIDs...)
		c.mu.Unlock()
		for _, chanID := range seedIDs {
			ids, err := c.fetchRSSHints(ctx, chanID)
			if err != nil {
				logging.Warn().Str("platform", "helix").Str("channel_id", chanID).Err(err).Msg("rss hint fetch failed")
				continue
			}
			for _, id := range ids {
				candidateIDs[id] = model.DiscoveryRSS
			}
		}
	}

	if c.searchDue() {
		ids, err := c.searchVideoIDs(ctx, keywords)
		if err != nil && !errors.Is(err, connector.ErrQuotaExhausted) {
			return nil, fmt.Errorf("helix: search: %w", err)
		}
		// Quota exhaustion here means searchVideoIDs returned nothing new,
		// but candidates already gathered from the RSS hint sweep above
		// still get validated below rather than thrown away.
		for _, id := range ids {
			candidateIDs[id] = model.DiscoverySearch
		}
		if err == nil {
			c.mu.Lock()
			c.lastSearchAt = time.Now().UTC()
			c.mu.Unlock()
		}
	}

	if len(candidateIDs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidateIDs))
	for id := range candidateIDs {
		ids = append(ids, id)
	}

	items, err := c.batchGetVideos(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("helix: validate candidates: %w", err)
	}

	now := time.Now().UTC()
	streams := make([]model.Stream, 0, len(items))
	for _, item := range items {
		if item.LiveStreamingDetails == nil {
			continue // not a broadcast, e.g. a regular upload matched by search
		}
		s, err := parseVideoToStream(item, candidateIDs[item.ID], keywords, now)
		if err != nil {
			logging.Warn().Str("platform", "helix").Str("video_id", item.ID).Err(err).Msg("skipping unparseable candidate")
			continue
		}
		streams = append(streams, *s)
	}
	return streams, nil
}

func (c *Connector) searchDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	interval := time.Duration(c.cfg.SearchIntervalMinutes) * time.Minute
	return time.Since(c.lastSearchAt) >= interval
}

// CheckLiveness batch-validates known stream ids, 1 unit per up-to-50 ids.
// Ids the upstream no longer returns (removed/private videos) are simply
// omitted; catalog.MarkMissingAsEnded's consecutive-miss accounting handles
// the absence.
func (c *Connector) CheckLiveness(ctx context.Context, platformStreamIDs []string) ([]model.StreamUpdate, error) {
	if !c.governor.IsOperational() || len(platformStreamIDs) == 0 {
		return nil, nil
	}

	items, err := c.batchGetVideos(ctx, platformStreamIDs)
	if err != nil {
		return nil, fmt.Errorf("helix: check liveness: %w", err)
	}

	now := time.Now().UTC()
	updates := make([]model.StreamUpdate, 0, len(items))
	for _, item := range items {
		status, viewers := deriveLiveness(item.LiveStreamingDetails)
		updates = append(updates, model.StreamUpdate{
			PlatformStreamID: item.ID,
			ViewerCount:       viewers,
			Status:            status,
			LastCheckedAt:     now,
		})
	}
	return updates, nil
}

// GetChannel fetches channel metadata, 1 unit.
func (c *Connector) GetChannel(ctx context.Context, platformChannelID string) (*model.Channel, error) {
	if err := c.governor.ConsumeQuota(listUnitCost); err != nil {
		return nil, err
	}

	result, err := c.governor.Execute(func() (any, error) {
		return c.fetchChannel(ctx, platformChannelID)
	})
	if err != nil {
		return nil, err
	}
	item, err := connector.CastResult[channelItem](result, nil)
	if err != nil {
		return nil, err
	}

	ch := &model.Channel{
		Platform:          model.PlatformHelix,
		PlatformChannelID: item.ID,
		DisplayName:       item.Snippet.Title,
		AvatarURL:         normalize.ThumbnailURL(item.Snippet.Thumbnails.High.URL),
	}
	if subs, err := strconv.ParseInt(item.Statistics.SubscriberCount, 10, 64); err == nil {
		ch.SubscriberCount = subs
	}
	if created, err := normalize.Timestamp(item.Snippet.PublishedAt); err == nil {
		ch.AccountCreatedAt = &created
	}
	return ch, nil
}

func deriveLiveness(d *liveStreamingDetails) (model.StreamStatus, int64) {
	if d == nil {
		return model.StreamEnded, 0
	}
	viewers, _ := strconv.ParseInt(d.ConcurrentViewers, 10, 64)
	switch {
	case d.ActualEndTime != "":
		return model.StreamEnded, 0
	case d.ActualStartTime != "":
		return model.StreamLive, viewers
	default:
		return model.StreamUpcoming, 0
	}
}

func parseVideoToStream(item videoItem, method model.DiscoveryMethod, keywords []string, now time.Time) (*model.Stream, error) {
	d := item.LiveStreamingDetails
	status, viewers := deriveLiveness(d)

	s := &model.Stream{
		Platform:          model.PlatformHelix,
		PlatformChannelID: item.Snippet.ChannelID,
		PlatformStreamID:  item.ID,
		Title:            item.Snippet.Title,
		Description:      item.Snippet.Description,
		ThumbnailURL:     normalize.ThumbnailURL(item.Snippet.Thumbnails.High.URL),
		Status:           status,
		ViewerCount:      viewers,
		PeakViewerCount:  viewers,
		DetectedAt:       now,
		LastCheckedAt:    now,
		MatchedKeywords:  normalize.MatchedKeywords(item.Snippet.Title+" "+item.Snippet.Description, keywords),
		DiscoveryMethod:  method,
	}

	if d != nil && d.ActualStartTime != "" {
		if t, err := normalize.Timestamp(d.ActualStartTime); err == nil {
			s.StartTime = &t
		}
	}
	if status.Terminal() {
		if d != nil && d.ActualEndTime != "" {
			if t, err := normalize.Timestamp(d.ActualEndTime); err == nil {
				s.EndTime = &t
			}
		}
		if s.EndTime == nil {
			s.EndTime = &now
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Connector) searchVideoIDs(ctx context.Context, keywords []string) ([]string, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if err := c.governor.ConsumeQuota(searchUnitCost); err != nil {
		return nil, err
	}

	result, err := c.governor.Execute(func() (any, error) {
		return c.doSearch(ctx, strings.Join(keywords, "|"))
	})
	if err != nil {
		return nil, err
	}
	resp, err := connector.CastResult[searchResponse](result, nil)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

func (c *Connector) doSearch(ctx context.Context, query string) (any, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("eventType", "live")
	params.Set("q", query)
	params.Set("maxResults", "50")
	params.Set("key", c.cfg.APIKey)

	var out searchResponse
	if err := c.get(ctx, "/search", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// batchGetVideos validates ids in batches of listBatchSize. Quota exhaustion
// partway through stops the loop but returns whatever batches already
// succeeded rather than discarding them (spec.md §4.1: "returns whatever was
// collected so far"), matching youtube.py's check_stream_status/
// discover_streams, which break out of the batch loop instead of raising.
// Any other failure (request/decode error) still aborts with an error, since
// those are not the quota-exhaustion case the contract carves out.
func (c *Connector) batchGetVideos(ctx context.Context, ids []string) ([]videoItem, error) {
	var all []videoItem
	for start := 0; start < len(ids); start += listBatchSize {
		end := start + listBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		if err := c.governor.ConsumeQuota(listUnitCost); err != nil {
			if errors.Is(err, connector.ErrQuotaExhausted) {
				logging.Warn().Str("platform", "helix").Int("validated", len(all)).Int("remaining", len(ids)-start).Msg("quota exhausted mid-batch, returning partial results")
				return all, nil
			}
			return nil, err
		}
		result, err := c.governor.Execute(func() (any, error) {
			return c.doBatchGetVideos(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		resp, err := connector.CastResult[videosResponse](result, nil)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Items...)
	}
	return all, nil
}

func (c *Connector) doBatchGetVideos(ctx context.Context, ids []string) (any, error) {
	params := url.Values{}
	params.Set("part", "snippet,liveStreamingDetails")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", c.cfg.APIKey)

	var out videosResponse
	if err := c.get(ctx, "/videos", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Connector) fetchChannel(ctx context.Context, channelID string) (any, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics")
	params.Set("id", channelID)
	params.Set("key", c.cfg.APIKey)

	var out channelsResponse
	if err := c.get(ctx, "/channels", params, &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("helix: channel %s not found", channelID)
	}
	return &out.Items[0], nil
}

// fetchRSSHints reads a seed channel's feed and returns candidate video ids.
// This path never consumes quota; the ids it surfaces still go through
// batchGetVideos for validation, which does.
func (c *Connector) fetchRSSHints(ctx context.Context, channelID string) ([]string, error) {
	reqURL := fmt.Sprintf("%s/feeds/videos.xml?channel_id=%s", c.baseURL, url.QueryEscape(channelID))

	var feed rssFeed
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("helix: build rss request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.MarkTransient(fmt.Errorf("helix: rss request: %w", err))
		}
		defer resp.Body.Close()

		if isTransientStatus(resp.StatusCode) {
			return retry.MarkTransient(fmt.Errorf("helix: rss request failed with status %d: %s", resp.StatusCode, string(readBodyForError(resp.Body))))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("helix: rss request failed with status %d: %s", resp.StatusCode, string(readBodyForError(resp.Body)))
		}

		feed = rssFeed{}
		if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
			return fmt.Errorf("helix: decode rss feed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e.VideoID != "" {
			ids = append(ids, e.VideoID)
		}
	}
	return ids, nil
}

// isTransientStatus reports whether status is worth retrying (spec.md §7
// kind 4): rate-limited or a server-side failure, not a malformed request.
func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (c *Connector) get(ctx context.Context, path string, params url.Values, result any) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("helix: build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.MarkTransient(fmt.Errorf("helix: request failed: %w", err))
		}
		defer resp.Body.Close()

		if isTransientStatus(resp.StatusCode) {
			return retry.MarkTransient(fmt.Errorf("helix: request to %s failed with status %d: %s", path, resp.StatusCode, string(readBodyForError(resp.Body))))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("helix: request to %s failed with status %d: %s", path, resp.StatusCode, string(readBodyForError(resp.Body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("helix: decode response from %s: %w", path, err)
		}
		return nil
	})
}

func readBodyForError(r io.Reader) []byte {
	limited := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}
