package feedparse

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mmcdole/gofeed"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Parser fetches feeds to confirm their metadata. Titles of feeds that
// parsed successfully are cached; failures are not.
type Parser struct {
	fp     *gofeed.Parser
	titles *lru.Cache[string, string]
}

// New returns a parser with an HTTP timeout and a title cache of the given
// size.
func New(timeout time.Duration, cacheSize int) (*Parser, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create title cache: %w", err)
	}
	fp := gofeed.NewParser()
	fp.Client = &http.Client{Timeout: timeout}
	fp.UserAgent = userAgent
	return &Parser{fp: fp, titles: cache}, nil
}

// Title fetches and parses the feed at url and returns its title, or the
// url itself when the feed has none.
func (p *Parser) Title(ctx context.Context, url string) (string, error) {
	if t, ok := p.titles.Get(url); ok {
		return t, nil
	}
	feed, err := p.fp.ParseURLWithContext(url, ctx)
	if err != nil {
		return "", fmt.Errorf("parse feed %s: %w", url, err)
	}
	title := strings.TrimSpace(feed.Title)
	if title == "" {
		title = url
	}
	p.titles.Add(url, title)
	return title, nil
}
