package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/lotas/tabfeeds/internal/discover"
	"github.com/lotas/tabfeeds/internal/types"
)

var skipPrefixes = []string{"about:", "moz-extension:", "file:", "chrome:", "resource:", "data:"}

const (
	fetchTimeout = 15 * time.Second
	maxPageSize  = 5 << 20
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Page is a fetched page with the feeds it declares.
type Page struct {
	URL     string
	Title   string
	Favicon string
	HTML    string
	Feeds   []types.Feed
}

// NewClient returns the HTTP client used for page fetches.
func NewClient() *http.Client {
	return &http.Client{Timeout: fetchTimeout}
}

// FetchPage downloads a page and extracts its feeds. Title and favicon come
// from the page head, falling back to readability's extraction.
func FetchPage(ctx context.Context, client *http.Client, pageURL string) (*Page, error) {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(pageURL, prefix) {
			return nil, fmt.Errorf("skipping non-HTTP URL: %s", pageURL)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: HTTP %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	// Redirects change the base for relative links.
	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	found, err := discover.FromHTML(bytes.NewReader(body), finalURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	p := &Page{
		URL:     finalURL,
		Title:   found.Title,
		Favicon: found.Favicon,
		HTML:    string(body),
		Feeds:   found.Feeds,
	}

	if p.Title == "" || p.Favicon == "" {
		base, _ := url.Parse(finalURL)
		if article, err := readability.FromReader(bytes.NewReader(body), base); err == nil {
			if p.Title == "" {
				p.Title = article.Title
			}
			if p.Favicon == "" {
				p.Favicon = article.Favicon
			}
		}
	}

	return p, nil
}
