// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package torrent implements the rate-budgeted platform adapter:
// OAuth client-credentials authentication, a keyword channel search plus a
// category scan with client-side keyword filtering for discovery, batch
// liveness checks, and a self-throttle layered in front of a breaker that
// trips on the upstream's own declared rate-limit reset. Grounded on
// original_source/backend/connectors/twitch.py.
package torrent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/connector"
	"github.com/tomtom215/streamaggregator/internal/logging"
	"github.com/tomtom215/streamaggregator/internal/platform/normalize"
	"github.com/tomtom215/streamaggregator/internal/platform/retry"
)

const (
	defaultBaseURL = "https://torrentdata.example.com/helix"
	defaultAuthURL = "https://id.torrentdata.example.com/oauth2/token"

	liveBatchSize = 100
	tokenRefreshBuffer = 60 * time.Second

	maxErrorBodySize = 64 * 1024
)

// Option customizes a Connector at construction.
type Option func(*Connector)

func WithBaseURL(u string) Option { return func(c *Connector) { c.baseURL = u } }
func WithAuthURL(u string) Option { return func(c *Connector) { c.authURL = u } }
func WithHTTPClient(h *http.Client) Option {
	return func(c *Connector) { c.httpClient = h }
}

// Connector implements connector.Connector for the rate-budgeted platform.
type Connector struct {
	cfg        config.TorrentConfig
	baseURL    string
	authURL    string
	httpClient *http.Client
	governor   *connector.Governor
	limiter    *rate.Limiter

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ connector.Connector = (*Connector)(nil)

// New builds a Torrent connector. governor should be constructed with
// QuotaLimit: 0 (this platform is rate-budgeted, not quota-metered; see
// Governor.ForcePause for how header-driven throttling is enforced instead).
func New(cfg config.TorrentConfig, governor *connector.Governor, opts ...Option) *Connector {
	c := &Connector{
		cfg:      cfg,
		baseURL:  defaultBaseURL,
		authURL:  defaultAuthURL,
		governor: governor,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxInt(cfg.RequestsPerMinute, 1))), maxInt(cfg.RequestsPerMinute, 1)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (c *Connector) Platform() model.Platform { return model.PlatformTorrent }

// Authenticate performs the OAuth client-credentials exchange, grounded on
// twitch.py's authenticate/_ensure_authenticated.
func (c *Connector) Authenticate(ctx context.Context) error {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return fmt.Errorf("torrent: client_id and client_secret are required")
	}

	body := url.Values{}
	body.Set("client_id", c.cfg.ClientID)
	body.Set("client_secret", c.cfg.ClientSecret)
	body.Set("grant_type", "client_credentials")

	var tok oauthTokenResponse
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(body.Encode()))
		if err != nil {
			return fmt.Errorf("torrent: build auth request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.MarkTransient(fmt.Errorf("torrent: auth request failed: %w", err))
		}
		defer resp.Body.Close()

		if isTransientStatus(resp.StatusCode) {
			return retry.MarkTransient(fmt.Errorf("torrent: auth failed with status %d: %s", resp.StatusCode, string(readBodyForError(resp.Body))))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("torrent: auth failed with status %d: %s", resp.StatusCode, string(readBodyForError(resp.Body)))
		}

		tok = oauthTokenResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
			return fmt.Errorf("torrent: decode auth response: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.mu.Unlock()
	return nil
}

// isTransientStatus reports whether status is worth retrying (spec.md §7
// kind 4): rate-limited or a server-side failure, not a malformed request.
func isTransientStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func (c *Connector) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	expired := c.accessToken == "" || time.Now().After(c.tokenExpiry.Add(-tokenRefreshBuffer))
	c.mu.Unlock()
	if !expired {
		return nil
	}
	return c.Authenticate(ctx)
}

// Discover combines a keyword channel search with a category scan filtered
// client-side against keywords, deduplicated by platform stream id
// (twitch.py's discover_streams).
func (c *Connector) Discover(ctx context.Context, keywords []string) ([]model.Stream, error) {
	if !c.governor.IsOperational() {
		return nil, nil
	}
	if len(keywords) == 0 {
		keywords = c.cfg.Keywords
	}

	now := time.Now().UTC()
	byID := make(map[string]model.Stream)

	for _, kw := range keywords {
		results, err := c.searchChannels(ctx, kw)
		if err != nil {
			return nil, fmt.Errorf("torrent: search channels: %w", err)
		}
		for _, r := range results {
			if !r.IsLive {
				continue
			}
			s := parseChannelSearchResult(r, model.DiscoverySearch, keywords, now)
			if err := s.Validate(); err != nil {
				logging.Warn().Str("platform", "torrent").Str("channel_id", r.ID).Err(err).Msg("skipping unparseable search result")
				continue
			}
			byID[s.PlatformStreamID] = s
		}
	}

	for _, categoryID := range c.cfg.Categories {
		results, err := c.scanCategory(ctx, categoryID)
		if err != nil {
			return nil, fmt.Errorf("torrent: scan category %s: %w", categoryID, err)
		}
		for _, r := range results {
			matched := normalize.MatchedKeywords(r.Title, keywords)
			if len(matched) == 0 {
				continue
			}
			s := parseStreamResult(r, model.DiscoverySignal, matched, now)
			if err := s.Validate(); err != nil {
				logging.Warn().Str("platform", "torrent").Str("stream_id", r.ID).Err(err).Msg("skipping unparseable category result")
				continue
			}
			if _, exists := byID[s.PlatformStreamID]; !exists {
				byID[s.PlatformStreamID] = s
			}
		}
	}

	streams := make([]model.Stream, 0, len(byID))
	for _, s := range byID {
		streams = append(streams, s)
	}
	return streams, nil
}

// CheckLiveness batch-queries up to 100 user ids per call. Ids the upstream
// doesn't return are simply omitted; catalog.MarkMissingAsEnded's
// consecutive-miss accounting handles the absence, same as Helix.
func (c *Connector) CheckLiveness(ctx context.Context, platformStreamIDs []string) ([]model.StreamUpdate, error) {
	if !c.governor.IsOperational() || len(platformStreamIDs) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	var updates []model.StreamUpdate
	for start := 0; start < len(platformStreamIDs); start += liveBatchSize {
		end := start + liveBatchSize
		if end > len(platformStreamIDs) {
			end = len(platformStreamIDs)
		}
		batch := platformStreamIDs[start:end]

		results, err := c.batchGetStreamsByID(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("torrent: check liveness: %w", err)
		}
		for _, r := range results {
			updates = append(updates, model.StreamUpdate{
				PlatformStreamID: r.ID,
				ViewerCount:       r.ViewerCount,
				Status:            model.StreamLive,
				LastCheckedAt:     now,
			})
		}
	}
	return updates, nil
}

// GetChannel fetches user metadata plus a separate follower-count call,
// grounded on twitch.py's get_channel_info.
func (c *Connector) GetChannel(ctx context.Context, platformChannelID string) (*model.Channel, error) {
	result, err := c.governor.Execute(func() (any, error) {
		return c.fetchUser(ctx, platformChannelID)
	})
	if err != nil {
		return nil, err
	}
	user, err := connector.CastResult[userResult](result, nil)
	if err != nil {
		return nil, err
	}

	ch := &model.Channel{
		Platform:          model.PlatformTorrent,
		PlatformChannelID: user.ID,
		DisplayName:       user.DisplayName,
		AvatarURL:         normalize.ThumbnailURL(user.ProfileImageURL),
	}
	if created, err := normalize.Timestamp(user.CreatedAt); err == nil {
		ch.AccountCreatedAt = &created
	}

	followersResult, err := c.governor.Execute(func() (any, error) {
		return c.fetchFollowerCount(ctx, platformChannelID)
	})
	if err == nil {
		if followers, castErr := connector.CastResult[followersResponse](followersResult, nil); castErr == nil {
			ch.SubscriberCount = followers.Total
		}
	}

	return ch, nil
}

func parseChannelSearchResult(r channelSearchResult, method model.DiscoveryMethod, keywords []string, now time.Time) model.Stream {
	s := model.Stream{
		Platform:          model.PlatformTorrent,
		PlatformChannelID: r.ID,
		PlatformStreamID:  r.ID + ":" + r.StartedAt,
		Title:             r.Title,
		ThumbnailURL:      normalize.ThumbnailURL(r.ThumbnailURL),
		Status:            model.StreamLive,
		DetectedAt:        now,
		LastCheckedAt:     now,
		MatchedKeywords:   normalize.MatchedKeywords(r.Title, keywords),
		DiscoveryMethod:   method,
	}
	if t, err := normalize.Timestamp(r.StartedAt); err == nil {
		s.StartTime = &t
	}
	return s
}

func parseStreamResult(r streamResult, method model.DiscoveryMethod, matched []string, now time.Time) model.Stream {
	s := model.Stream{
		Platform:          model.PlatformTorrent,
		PlatformChannelID: r.UserID,
		PlatformStreamID:  r.ID,
		Title:             r.Title,
		ThumbnailURL:      normalize.ThumbnailURL(r.ThumbnailURL),
		Status:            model.StreamLive,
		ViewerCount:       r.ViewerCount,
		PeakViewerCount:   r.ViewerCount,
		Language:          r.Language,
		DetectedAt:        now,
		LastCheckedAt:     now,
		MatchedKeywords:   matched,
		DiscoveryMethod:   method,
	}
	if t, err := normalize.Timestamp(r.StartedAt); err == nil {
		s.StartTime = &t
	}
	return s
}

func (c *Connector) searchChannels(ctx context.Context, query string) ([]channelSearchResult, error) {
	result, err := c.governor.Execute(func() (any, error) {
		params := url.Values{}
		params.Set("query", query)
		params.Set("live_only", "true")
		params.Set("first", "100")

		var out searchChannelsResponse
		if err := c.get(ctx, "/search/channels", params, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	resp, err := connector.CastResult[searchChannelsResponse](result, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Connector) scanCategory(ctx context.Context, categoryID string) ([]streamResult, error) {
	result, err := c.governor.Execute(func() (any, error) {
		params := url.Values{}
		params.Set("game_id", categoryID)
		params.Set("first", "100")

		var out streamsResponse
		if err := c.get(ctx, "/streams", params, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	resp, err := connector.CastResult[streamsResponse](result, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Connector) batchGetStreamsByID(ctx context.Context, userIDs []string) ([]streamResult, error) {
	result, err := c.governor.Execute(func() (any, error) {
		params := url.Values{}
		for _, id := range userIDs {
			params.Add("user_id", id)
		}
		params.Set("first", strconv.Itoa(len(userIDs)))

		var out streamsResponse
		if err := c.get(ctx, "/streams", params, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	resp, err := connector.CastResult[streamsResponse](result, nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Connector) fetchUser(ctx context.Context, platformChannelID string) (any, error) {
	params := url.Values{}
	params.Set("id", platformChannelID)

	var out usersResponse
	if err := c.get(ctx, "/users", params, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("torrent: user %s not found", platformChannelID)
	}
	return &out.Data[0], nil
}

func (c *Connector) fetchFollowerCount(ctx context.Context, platformChannelID string) (any, error) {
	params := url.Values{}
	params.Set("broadcaster_id", platformChannelID)

	var out followersResponse
	if err := c.get(ctx, "/channels/followers", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get self-throttles via the rate limiter, ensures a fresh OAuth token,
// issues the request under retry.Do (base 2s/cap 60s/3 attempts on a
// transient failure), observes the upstream's rate-limit headers (possibly
// force-pausing the governor) on every attempt, and decodes the JSON body.
func (c *Connector) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("torrent: rate limiter wait: %w", err)
	}
	if err := c.ensureAuthenticated(ctx); err != nil {
		return fmt.Errorf("torrent: authenticate: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	return retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("torrent: build request: %w", err)
		}
		c.mu.Lock()
		token := c.accessToken
		c.mu.Unlock()
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Client-Id", c.cfg.ClientID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.MarkTransient(fmt.Errorf("torrent: request failed: %w", err))
		}
		defer resp.Body.Close()

		c.observeRateLimitHeaders(resp.Header)

		if isTransientStatus(resp.StatusCode) {
			return retry.MarkTransient(fmt.Errorf("torrent: request to %s failed with status %d: %s", path, resp.StatusCode, string(readBodyForError(resp.Body))))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("torrent: request to %s failed with status %d: %s", path, resp.StatusCode, string(readBodyForError(resp.Body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("torrent: decode response from %s: %w", path, err)
		}
		return nil
	})
}

// observeRateLimitHeaders implements spec.md §7's rate-limit-proximity error
// kind: once remaining budget drops below RateLimitSafetyThreshold, force-
// pause the governor until the upstream's own declared reset instant,
// rather than waiting for N consecutive failures to trip the breaker.
// Grounded on twitch.py's _check_rate_limit reading
// Ratelimit-Remaining/Ratelimit-Reset.
func (c *Connector) observeRateLimitHeaders(h http.Header) {
	limit, errLimit := strconv.ParseFloat(h.Get("Ratelimit-Limit"), 64)
	remaining, errRemaining := strconv.ParseFloat(h.Get("Ratelimit-Remaining"), 64)
	resetUnix, errReset := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64)
	if errLimit != nil || errRemaining != nil || errReset != nil || limit <= 0 {
		return
	}

	if remaining/limit < c.cfg.RateLimitSafetyThreshold {
		until := time.Unix(resetUnix, 0)
		logging.Warn().Str("platform", "torrent").Float64("remaining_ratio", remaining/limit).Time("until", until).Msg("rate limit proximity, pausing connector")
		c.governor.ForcePause(until)
	}
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
