// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package helix

// Wire DTOs for the quota-metered upstream's JSON responses. None of these
// types escape this package; every exported function in helix.go converts into
// internal/catalog/model at the boundary (spec.md §9 design notes).

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet itemSnippet `json:"snippet"`
}

type itemSnippet struct {
	ChannelID    string      `json:"channelId"`
	ChannelTitle string      `json:"channelTitle"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	PublishedAt  string      `json:"publishedAt"`
	Thumbnails   thumbnailSet `json:"thumbnails"`
}

type thumbnailSet struct {
	High struct {
		URL string `json:"url"`
	} `json:"high"`
}

type videosResponse struct {
	Items []videoItem `json:"items"`
}

type videoItem struct {
	ID                   string                `json:"id"`
	Snippet              itemSnippet           `json:"snippet"`
	LiveStreamingDetails *liveStreamingDetails `json:"liveStreamingDetails"`
}

// liveStreamingDetails mirrors the upstream's liveStreamingDetails part.
// ConcurrentViewers arrives as a decimal string, not a JSON number.
type liveStreamingDetails struct {
	ActualStartTime    string `json:"actualStartTime"`
	ActualEndTime      string `json:"actualEndTime"`
	ScheduledStartTime string `json:"scheduledStartTime"`
	ConcurrentViewers  string `json:"concurrentViewers"`
}

type channelsResponse struct {
	Items []channelItem `json:"items"`
}

type channelItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string       `json:"title"`
		PublishedAt string       `json:"publishedAt"`
		Thumbnails  thumbnailSet `json:"thumbnails"`
	} `json:"snippet"`
	Statistics struct {
		SubscriberCount string `json:"subscriberCount"`
	} `json:"statistics"`
}

// rssFeed is the minimal subset of an Atom feed Discover reads for the
// zero-quota RSS hint path: recent video ids for a seed channel.
type rssFeed struct {
	Entries []rssEntry `xml:"entry"`
}

type rssEntry struct {
	VideoID string `xml:"videoId"`
}
