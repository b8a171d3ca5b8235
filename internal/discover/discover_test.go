package discover

import (
	"strings"
	"testing"
)

const page = `<!DOCTYPE html>
<html><head>
<title>Example Blog</title>
<link rel="shortcut icon" href="/favicon.ico">
<link rel="alternate" type="application/rss+xml" title="Posts" href="/rss.xml">
<link rel="alternate" type="application/atom+xml" href="https://example.com/atom">
<link rel="alternate" hreflang="de" href="/de/">
<link rel="stylesheet" href="/style.css">
</head><body>
<a href="/feed/">Subscribe</a>
<a href="/rss.xml">RSS</a>
<a href="/about">About</a>
<a href="javascript:void(0)">noop</a>
<a href="mailto:feeds@example.com">mail</a>
</body></html>`

func TestFromHTML(t *testing.T) {
	p, err := FromHTML(strings.NewReader(page), "https://example.com/posts/1")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if p.Title != "Example Blog" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Favicon != "https://example.com/favicon.ico" {
		t.Errorf("favicon = %q", p.Favicon)
	}
	if len(p.Feeds) != 3 {
		t.Fatalf("got %d feeds, want 3: %+v", len(p.Feeds), p.Feeds)
	}

	rss := p.Feeds[0]
	if rss.URL != "https://example.com/rss.xml" || rss.Title != "Posts" || rss.IsPending() {
		t.Errorf("rss feed = %+v", rss)
	}
	atom := p.Feeds[1]
	if atom.Title != "Example Blog" {
		t.Errorf("atom title should fall back to page title, got %q", atom.Title)
	}
	guess := p.Feeds[2]
	if guess.URL != "https://example.com/feed/" || !guess.IsPending() {
		t.Errorf("anchor feed = %+v, want pending /feed/", guess)
	}
}

func TestFeedsNoFeeds(t *testing.T) {
	feeds, err := Feeds(`<html><body><a href="/contact">c</a></body></html>`, "https://example.com/")
	if err != nil {
		t.Fatalf("Feeds: %v", err)
	}
	if len(feeds) != 0 {
		t.Errorf("expected no feeds, got %+v", feeds)
	}
}

func TestFromHTMLBadURL(t *testing.T) {
	if _, err := FromHTML(strings.NewReader(page), "://bad"); err == nil {
		t.Error("expected error for bad page url")
	}
}
