package server

import (
	"encoding/json"
	"fmt"

	"github.com/lotas/tabfeeds/internal/types"
)

// WireFeed is a feed as the extension sends and receives it.
type WireFeed struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Image     string `json:"image,omitempty"`
	Uncertain bool   `json:"uncertain,omitempty"`
}

type wireTab struct {
	ID         int    `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl"`
}

func (w WireFeed) feed() types.Feed {
	if w.Uncertain {
		f := types.NewPending(w.URL)
		f.Title = w.Title
		f.Image = w.Image
		return f
	}
	return types.NewConfirmed(w.URL, w.Title, w.Image)
}

// ParseFeeds converts a raw JSON feed list. Entries without a URL are
// skipped; a missing list yields nil.
func ParseFeeds(raw json.RawMessage) ([]types.Feed, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var wire []WireFeed
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("parse feeds: %w", err)
	}
	feeds := make([]types.Feed, 0, len(wire))
	for _, w := range wire {
		if w.URL == "" {
			continue
		}
		feeds = append(feeds, w.feed())
	}
	return feeds, nil
}

// ParseFeed converts a single raw JSON feed. It returns nil for a missing
// or null feed.
func ParseFeed(raw json.RawMessage) (*types.Feed, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var w WireFeed
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if w.URL == "" {
		return nil, nil
	}
	f := w.feed()
	return &f, nil
}

// ParseTab converts a raw JSON tab into a Tab.
func ParseTab(raw json.RawMessage) (types.Tab, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return types.Tab{}, fmt.Errorf("parse tab: %w", err)
	}
	return types.Tab{
		ID:      wt.ID,
		URL:     wt.URL,
		Title:   wt.Title,
		Favicon: wt.FavIconURL,
	}, nil
}

// EncodeFeeds converts feeds to their wire form. The result is never nil
// so it encodes as an empty JSON array.
func EncodeFeeds(feeds []types.Feed) []WireFeed {
	out := make([]WireFeed, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, WireFeed{
			URL:       f.URL,
			Title:     f.Title,
			Image:     f.Image,
			Uncertain: f.IsPending(),
		})
	}
	return out
}

// EncodeBundle converts a tab's collections to the rss.all payload.
func EncodeBundle(b types.Bundle) *BundlePayload {
	return &BundlePayload{
		PageRSS:       EncodeFeeds(b.PageFeeds),
		PageRSSHub:    EncodeFeeds(b.PageHubFeeds),
		WebsiteRSSHub: EncodeFeeds(b.SiteHubFeeds),
	}
}
