// Package scan checks the tabs of a saved Firefox session for feeds
// without a running browser.
package scan

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/lotas/tabfeeds/internal/applog"
	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/hub"
	"github.com/lotas/tabfeeds/internal/registry"
	"github.com/lotas/tabfeeds/internal/types"
)

// DefaultConcurrency is the number of pages fetched at once.
const DefaultConcurrency = 10

// Parser resolves a pending feed to its title.
type Parser interface {
	Title(ctx context.Context, url string) (string, error)
}

// Executor runs hub extraction commands.
type Executor interface {
	Run(ctx context.Context, command string, args hub.Args) ([]types.Feed, error)
}

// Result is the outcome for one tab.
type Result struct {
	URL     string
	Title   string
	Favicon string
	Bundle  types.Bundle
	Badge   badge.Badge
	Err     string
}

// FeedCount is the number of feeds counted on the badge.
func (r Result) FeedCount() int {
	return len(r.Bundle.PageFeeds) + len(r.Bundle.PageHubFeeds)
}

// Report is the outcome of a scan.
type Report struct {
	Profile   string
	ScannedAt time.Time
	Results   []Result
}

// Scanner fetches pages and computes the same collections and badge a live
// tab would get.
type Scanner struct {
	Client      *http.Client
	Parser      Parser
	Executor    Executor
	Rules       hub.Rules
	Subs        badge.SubscriptionSource
	ShowText    bool
	Concurrency int
}

// Scan processes tabs and returns one result per tab, in input order.
func (s *Scanner) Scan(ctx context.Context, profile string, tabs []*types.SessionTab) *Report {
	client := s.Client
	if client == nil {
		client = NewClient()
	}
	n := s.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}

	var subs []types.Subscription
	if s.Subs != nil {
		var err error
		subs, err = s.Subs.Subscriptions(ctx)
		if err != nil {
			applog.Error("scan.subs", err)
		}
	}

	reg := registry.New()
	results := make([]Result, len(tabs))
	sem := make(chan struct{}, n)
	var wg sync.WaitGroup

	for i, tab := range tabs {
		wg.Add(1)
		go func(idx int, t *types.SessionTab) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = s.scanTab(ctx, client, reg, idx, t, subs)
		}(i, tab)
	}
	wg.Wait()

	applog.Info("scan.done", "profile", profile, "tabs", len(tabs))
	return &Report{Profile: profile, ScannedAt: time.Now(), Results: results}
}

func (s *Scanner) scanTab(ctx context.Context, client *http.Client, reg *registry.Registry, id int, t *types.SessionTab, subs []types.Subscription) Result {
	res := Result{URL: t.URL, Title: t.Title, Favicon: t.Favicon}

	page, err := FetchPage(ctx, client, t.URL)
	if err != nil {
		applog.Warn("scan.fetch", "url", t.URL, "err", err)
		res.Err = err.Error()
		res.Bundle = reg.Get(id)
		res.Badge = badge.Decide(res.Bundle, subs, s.ShowText)
		return res
	}
	if res.Title == "" {
		res.Title = page.Title
	}
	if res.Favicon == "" {
		res.Favicon = page.Favicon
	}

	reg.Init(id)
	reg.SetPageFeeds(id, page.Feeds, res.Favicon)

	if s.Parser != nil {
		for _, f := range page.Feeds {
			if !f.IsPending() {
				continue
			}
			title, err := s.Parser.Title(ctx, f.URL)
			if err != nil {
				continue
			}
			f = f.Resolve(title)
			if res.Favicon != "" {
				f.Image = res.Favicon
			}
			reg.AppendPageFeed(id, f)
		}
	}

	if s.Executor != nil {
		args := hub.Args{URL: page.URL, HTML: page.HTML, Rules: s.Rules}
		if feeds, err := s.Executor.Run(ctx, hub.CmdPageHub, args); err == nil {
			reg.SetPageHubFeeds(id, feeds)
		}
		if feeds, err := s.Executor.Run(ctx, hub.CmdSiteHub, args); err == nil {
			reg.SetSiteHubFeeds(id, feeds)
		}
	}

	res.Bundle = reg.Get(id)
	res.Badge = badge.Decide(res.Bundle, subs, s.ShowText)
	return res
}
