package discover

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lotas/tabfeeds/internal/types"
)

var feedTypes = map[string]bool{
	"application/rss+xml":   true,
	"application/atom+xml":  true,
	"application/feed+json": true,
	"application/rdf+xml":   true,
}

// feedHints are path fragments that make an anchor a feed candidate.
var feedHints = []string{"rss", "atom", "feed", ".xml"}

// Page holds what was found in a page's markup.
type Page struct {
	Title   string
	Favicon string
	Feeds   []types.Feed
}

// FromHTML scans page markup for feeds. Declared <link rel="alternate">
// feeds are confirmed; anchors that merely look like feeds are pending.
func FromHTML(r io.Reader, pageURL string) (*Page, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{Title: strings.TrimSpace(doc.Find("title").First().Text())}

	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if hasToken(rel, "icon") {
			if href, ok := resolve(base, s.AttrOr("href", "")); ok {
				page.Favicon = href
				return false
			}
		}
		return true
	})

	seen := make(map[string]int)
	add := func(f types.Feed) {
		if i, ok := seen[f.URL]; ok {
			// Confirmed wins over pending.
			if page.Feeds[i].IsPending() && !f.IsPending() {
				page.Feeds[i] = f
			}
			return
		}
		seen[f.URL] = len(page.Feeds)
		page.Feeds = append(page.Feeds, f)
	}

	doc.Find("link[rel]").Each(func(_ int, s *goquery.Selection) {
		if !hasToken(strings.ToLower(s.AttrOr("rel", "")), "alternate") {
			return
		}
		if !feedTypes[strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))] {
			return
		}
		href, ok := resolve(base, s.AttrOr("href", ""))
		if !ok {
			return
		}
		title := strings.TrimSpace(s.AttrOr("title", ""))
		if title == "" {
			title = page.Title
		}
		add(types.NewConfirmed(href, title, ""))
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := resolve(base, s.AttrOr("href", ""))
		if !ok || !looksLikeFeed(href) {
			return
		}
		add(types.NewPending(href))
	})

	return page, nil
}

// Feeds is FromHTML for callers that only need the feed list.
func Feeds(html, pageURL string) ([]types.Feed, error) {
	page, err := FromHTML(strings.NewReader(html), pageURL)
	if err != nil {
		return nil, err
	}
	return page.Feeds, nil
}

func looksLikeFeed(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	for _, hint := range feedHints {
		if strings.Contains(p, hint) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func hasToken(list, token string) bool {
	for _, t := range strings.Fields(list) {
		if t == token {
			return true
		}
	}
	return false
}
