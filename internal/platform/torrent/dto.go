// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package torrent

// Wire DTOs for the rate-budgeted upstream's JSON responses. None of these
// escape this package; every exported function in torrent.go converts into
// internal/catalog/model at the boundary (spec.md §9 design notes).

type oauthTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type searchChannelsResponse struct {
	Data []channelSearchResult `json:"data"`
}

type channelSearchResult struct {
	ID             string `json:"id"`
	BroadcasterLogin string `json:"broadcaster_login"`
	DisplayName    string `json:"display_name"`
	Title          string `json:"title"`
	IsLive         bool   `json:"is_live"`
	ThumbnailURL   string `json:"thumbnail_url"`
	StartedAt      string `json:"started_at"`
	GameID         string `json:"game_id"`
}

type streamsResponse struct {
	Data []streamResult `json:"data"`
}

type streamResult struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	UserLogin    string   `json:"user_login"`
	UserName     string   `json:"user_name"`
	GameID       string   `json:"game_id"`
	GameName     string   `json:"game_name"`
	Title        string   `json:"title"`
	ViewerCount  int64    `json:"viewer_count"`
	StartedAt    string   `json:"started_at"`
	Language     string   `json:"language"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Tags         []string `json:"tags"`
}

type usersResponse struct {
	Data []userResult `json:"data"`
}

type userResult struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	CreatedAt       string `json:"created_at"`
	ProfileImageURL string `json:"profile_image_url"`
}

type followersResponse struct {
	Total int64 `json:"total"`
}
