package export

import (
	"strings"
	"testing"
	"time"

	"github.com/lotas/tabfeeds/internal/scan"
	"github.com/lotas/tabfeeds/internal/types"
)

func TestMarkdown(t *testing.T) {
	result := Markdown(sampleReport())

	checks := []string{
		"# Tab Feeds — default",
		"> Scanned 2024-03-01 12:00",
		"## Subscribed (1 tab)",
		"- [Go blog](https://go.dev/blog) — 1 feed",
		"  - page: [The Go Blog](https://go.dev/blog/feed.atom)",
		"## Hub only (1 tab)",
		"  - hub: [Repos](https://rsshub.app/github/repos/charmbracelet)",
		"  - site: [GitHub](https://docs.rsshub.app/programming#github)",
		"## Errors (1 tab)",
		"HTTP 404",
	}
	for _, want := range checks {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q, got:\n%s", want, result)
		}
	}
	if strings.Contains(result, "## No feeds") {
		t.Errorf("empty sections should be omitted, got:\n%s", result)
	}
}

func TestMarkdown_TitleFallbackToURL(t *testing.T) {
	result := Markdown(sampleReport())

	if !strings.Contains(result, "[https://github.com/charmbracelet/bubbletea](https://github.com/charmbracelet/bubbletea)") {
		t.Errorf("expected URL as title fallback, got:\n%s", result)
	}
}

func TestMarkdown_Sections(t *testing.T) {
	r := &scan.Report{Profile: "p", Results: []scan.Result{
		{URL: "https://a.com", Bundle: types.Bundle{PageFeeds: []types.Feed{types.NewConfirmed("https://a.com/rss", "", "")}}},
		{URL: "https://b.com", Bundle: types.Bundle{PageFeeds: []types.Feed{types.NewConfirmed("https://b.com/rss", "", "")}}},
		{URL: "https://c.com"},
	}}
	r.Results[1].Badge.Verdict = types.UnsubscribedAfter

	result := Markdown(r)
	for _, want := range []string{
		"## Not subscribed (1 tab)",
		"## Unsubscribed after subscribing (1 tab)",
		"## No feeds (1 tab)",
		"[https://a.com/rss](https://a.com/rss)",
		"— 0 feeds",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q, got:\n%s", want, result)
		}
	}
}

func TestSubscriptions(t *testing.T) {
	now := time.Now()
	subs := []types.Subscription{
		{SubURL: "https://a.com/rss", Title: "A", Status: types.Subscribed, UpdatedAt: now.Add(-3 * 24 * time.Hour)},
		{SubURL: "https://b.com/rss", Status: types.Unsubscribed, UpdatedAt: now.Add(-5 * time.Hour)},
	}

	result := Subscriptions(subs)
	for _, want := range []string{
		"# Subscriptions (2)",
		"- [A](https://a.com/rss) — subscribed, 3d ago",
		"- [https://b.com/rss](https://b.com/rss) — unsubscribed, 5h ago",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("missing %q, got:\n%s", want, result)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-3 * 24 * time.Hour), "3d ago"},
		{now.Add(-5 * time.Hour), "5h ago"},
		{now.Add(-30 * time.Minute), "30m ago"},
		{now, "just now"},
	}
	for _, tt := range tests {
		if got := relativeTime(tt.at); got != tt.want {
			t.Errorf("relativeTime(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
