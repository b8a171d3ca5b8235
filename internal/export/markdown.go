package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabfeeds/internal/scan"
	"github.com/lotas/tabfeeds/internal/types"
)

type section struct {
	name    string
	results []scan.Result
}

// Markdown formats a scan report as a markdown document. Tabs are grouped
// by how their feeds relate to the subscription list.
func Markdown(r *scan.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tab Feeds — %s\n", r.Profile)
	fmt.Fprintf(&b, "> Scanned %s\n", r.ScannedAt.Format("2006-01-02 15:04"))

	sections := []*section{
		{name: "Subscribed"},
		{name: "Unsubscribed after subscribing"},
		{name: "Not subscribed"},
		{name: "Hub only"},
		{name: "No feeds"},
		{name: "Errors"},
	}
	for _, res := range r.Results {
		var s *section
		switch {
		case res.Err != "":
			s = sections[5]
		case res.Badge.Verdict == types.FullySubscribed:
			s = sections[0]
		case res.Badge.Verdict == types.UnsubscribedAfter:
			s = sections[1]
		case len(res.Bundle.PageFeeds) > 0:
			s = sections[2]
		case res.FeedCount() > 0 || len(res.Bundle.SiteHubFeeds) > 0:
			s = sections[3]
		default:
			s = sections[4]
		}
		s.results = append(s.results, res)
	}

	for _, s := range sections {
		if len(s.results) == 0 {
			continue
		}
		n := len(s.results)
		noun := "tabs"
		if n == 1 {
			noun = "tab"
		}
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", s.name, n, noun)

		for _, res := range s.results {
			title := res.Title
			if title == "" {
				title = res.URL
			}
			if res.Err != "" {
				fmt.Fprintf(&b, "- [%s](%s) — %s\n", title, res.URL, res.Err)
				continue
			}
			fmt.Fprintf(&b, "- [%s](%s) — %s\n", title, res.URL, feedCount(res.FeedCount()))
			writeFeeds(&b, "page", res.Bundle.PageFeeds)
			writeFeeds(&b, "hub", res.Bundle.PageHubFeeds)
			writeFeeds(&b, "site", res.Bundle.SiteHubFeeds)
		}
	}

	return b.String()
}

func writeFeeds(b *strings.Builder, kind string, feeds []types.Feed) {
	for _, f := range feeds {
		title := f.Title
		if title == "" {
			title = f.URL
		}
		fmt.Fprintf(b, "  - %s: [%s](%s)\n", kind, title, f.URL)
	}
}

func feedCount(n int) string {
	if n == 1 {
		return "1 feed"
	}
	return fmt.Sprintf("%d feeds", n)
}

// Subscriptions formats the subscription list as a markdown list.
func Subscriptions(subs []types.Subscription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Subscriptions (%d)\n\n", len(subs))
	for _, s := range subs {
		title := s.Title
		if title == "" {
			title = s.SubURL
		}
		fmt.Fprintf(&b, "- [%s](%s) — %s, %s\n", title, s.SubURL, s.Status, relativeTime(s.UpdatedAt))
	}
	return b.String()
}

func relativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
