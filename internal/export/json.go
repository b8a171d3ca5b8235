package export

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/lotas/tabfeeds/internal/scan"
	"github.com/lotas/tabfeeds/internal/types"
)

type jsonExport struct {
	Profile   string    `json:"profile"`
	ScannedAt time.Time `json:"scanned_at"`
	Tabs      []jsonTab `json:"tabs"`
}

type jsonTab struct {
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	Domain       string     `json:"domain"`
	Favicon      string     `json:"favicon,omitempty"`
	BadgeText    string     `json:"badge_text"`
	BadgeColor   string     `json:"badge_color"`
	Verdict      string     `json:"verdict"`
	Error        string     `json:"error,omitempty"`
	PageFeeds    []jsonFeed `json:"page_feeds"`
	PageHubFeeds []jsonFeed `json:"page_hub_feeds"`
	SiteHubFeeds []jsonFeed `json:"site_hub_feeds"`
}

type jsonFeed struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Image string `json:"image,omitempty"`
}

// JSON formats a scan report as a JSON document.
func JSON(r *scan.Report) (string, error) {
	out := jsonExport{
		Profile:   r.Profile,
		ScannedAt: r.ScannedAt,
		Tabs:      make([]jsonTab, 0, len(r.Results)),
	}

	for _, res := range r.Results {
		out.Tabs = append(out.Tabs, jsonTab{
			Title:        res.Title,
			URL:          res.URL,
			Domain:       extractDomain(res.URL),
			Favicon:      res.Favicon,
			BadgeText:    res.Badge.Text,
			BadgeColor:   res.Badge.Color,
			Verdict:      res.Badge.Verdict.String(),
			Error:        res.Err,
			PageFeeds:    jsonFeeds(res.Bundle.PageFeeds),
			PageHubFeeds: jsonFeeds(res.Bundle.PageHubFeeds),
			SiteHubFeeds: jsonFeeds(res.Bundle.SiteHubFeeds),
		})
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func jsonFeeds(feeds []types.Feed) []jsonFeed {
	out := make([]jsonFeed, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, jsonFeed{URL: f.URL, Title: f.Title, Image: f.Image})
	}
	return out
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Hostname()
}
