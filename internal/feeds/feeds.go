// Package feeds keeps the per-tab feed collections current and the
// toolbar badge in sync with them.
//
// Collaborators (tab lookup, page HTML, hub extraction, feed parsing)
// run on their own goroutines and post an Update when they finish. A
// single loop (Run) applies updates to the registry and re-presents the
// tab's badge. The three populations of a tab land in any order; every
// present is correct for whatever has arrived so far.
package feeds

import (
	"context"
	"sync"

	"github.com/lotas/tabfeeds/internal/applog"
	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/hub"
	"github.com/lotas/tabfeeds/internal/registry"
	"github.com/lotas/tabfeeds/internal/types"
)

// TabInfo looks up the current URL and favicon of a tab.
type TabInfo interface {
	Tab(ctx context.Context, tabID int) (types.Tab, error)
}

// Messenger asks a tab's content script for its page HTML.
type Messenger interface {
	PageHTML(ctx context.Context, tabID int) (string, error)
}

// Executor runs hub extraction commands.
type Executor interface {
	Run(ctx context.Context, command string, args hub.Args) ([]types.Feed, error)
}

// Parser fetches a feed and returns its title.
type Parser interface {
	Title(ctx context.Context, url string) (string, error)
}

// RuleSource provides the current hub rules.
type RuleSource interface {
	Rules() hub.Rules
}

// Presenter renders the badge of a tab.
type Presenter interface {
	Present(ctx context.Context, tabID int) badge.Badge
}

type UpdateKind int

const (
	UpdateFavicon UpdateKind = iota
	UpdateAppendPageFeed
	UpdatePageHub
	UpdateSiteHub
	UpdatePresent
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateFavicon:
		return "favicon"
	case UpdateAppendPageFeed:
		return "append"
	case UpdatePageHub:
		return "page-hub"
	case UpdateSiteHub:
		return "site-hub"
	case UpdatePresent:
		return "present"
	default:
		return "unknown"
	}
}

// Update is the result of one collaborator for one tab. Gen ties it to the
// population that started it; updates from a population that was since
// replaced or removed are dropped.
type Update struct {
	TabID   int
	Gen     uint64
	Kind    UpdateKind
	Feeds   []types.Feed
	Favicon string
}

// Deps are the collaborators of a Service. Tabs, Messenger and Executor
// may be nil, which disables hub extraction and favicon lookup.
type Deps struct {
	Registry  *registry.Registry
	Presenter Presenter
	Tabs      TabInfo
	Messenger Messenger
	Executor  Executor
	Parser    Parser
	Rules     RuleSource
}

// Service orchestrates feed discovery for browser tabs.
type Service struct {
	reg       *registry.Registry
	presenter Presenter
	tabs      TabInfo
	msgr      Messenger
	exec      Executor
	parser    Parser
	rules     RuleSource

	updates chan Update

	mu        sync.Mutex
	gens      map[int]uint64
	info      map[int]types.Tab
	listeners []func(tabID int)
}

func New(d Deps) *Service {
	reg := d.Registry
	if reg == nil {
		reg = registry.New()
	}
	return &Service{
		reg:       reg,
		presenter: d.Presenter,
		tabs:      d.Tabs,
		msgr:      d.Messenger,
		exec:      d.Executor,
		parser:    d.Parser,
		rules:     d.Rules,
		updates:   make(chan Update, 256),
		gens:      make(map[int]uint64),
		info:      make(map[int]types.Tab),
	}
}

// Registry returns the registry the service writes to.
func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// OnChange registers fn to run after a tab's collections or badge change.
func (s *Service) OnChange(fn func(tabID int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) notify(tabID int) {
	s.mu.Lock()
	fns := append([]func(int){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(tabID)
	}
}

func (s *Service) gen(tabID int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[tabID]
}

// HandleRSS records the feeds a page declares and starts hub extraction
// and pending feed resolution for the tab. With useCache set and on-page
// feeds already stored, it only re-presents the badge. It returns
// immediately; results arrive through Run.
func (s *Service) HandleRSS(ctx context.Context, feeds []types.Feed, tabID int, useCache bool) {
	if useCache && s.reg.HasPageFeeds(tabID) {
		s.post(ctx, Update{TabID: tabID, Gen: s.gen(tabID), Kind: UpdatePresent})
		return
	}

	feeds = append([]types.Feed(nil), feeds...)

	// The on-page feeds are stored before returning so a feed reported
	// right after this page is appended to them, not replaced.
	s.mu.Lock()
	s.gens[tabID]++
	gen := s.gens[tabID]
	s.reg.Init(tabID)
	s.reg.SetPageFeeds(tabID, feeds, "")
	s.mu.Unlock()
	s.notify(tabID)

	go s.populate(ctx, tabID, gen, feeds)
}

func (s *Service) populate(ctx context.Context, tabID int, gen uint64, feeds []types.Feed) {
	var tab types.Tab
	var tabOK bool
	if s.tabs != nil {
		t, err := s.tabs.Tab(ctx, tabID)
		if err != nil {
			applog.Error("feeds.tab", err, "tab", tabID)
		} else {
			tab, tabOK = t, true
			s.remember(tabID, gen, t)
		}
	}

	s.post(ctx, Update{TabID: tabID, Gen: gen, Kind: UpdateFavicon, Favicon: tab.Favicon})

	if tabOK && tab.URL != "" && s.exec != nil {
		go s.siteHub(ctx, tabID, gen, tab)
		go s.pageHub(ctx, tabID, gen, tab)
	}

	for _, f := range feeds {
		if f.IsPending() && s.parser != nil {
			go s.resolve(ctx, tabID, gen, f, tab.Favicon)
		}
	}
}

func (s *Service) currentRules() hub.Rules {
	if s.rules == nil {
		return nil
	}
	return s.rules.Rules()
}

func (s *Service) siteHub(ctx context.Context, tabID int, gen uint64, tab types.Tab) {
	feeds, err := s.exec.Run(ctx, hub.CmdSiteHub, hub.Args{URL: tab.URL, Rules: s.currentRules()})
	if err != nil {
		applog.Error("feeds.sitehub", err, "tab", tabID)
		feeds = nil
	}
	s.post(ctx, Update{TabID: tabID, Gen: gen, Kind: UpdateSiteHub, Feeds: feeds})
}

func (s *Service) pageHub(ctx context.Context, tabID int, gen uint64, tab types.Tab) {
	var html string
	if s.msgr != nil {
		h, err := s.msgr.PageHTML(ctx, tabID)
		if err != nil {
			applog.Warn("feeds.html", "tab", tabID, "err", err)
		}
		html = h
	}
	feeds, err := s.exec.Run(ctx, hub.CmdPageHub, hub.Args{URL: tab.URL, HTML: html, Rules: s.currentRules()})
	if err != nil {
		applog.Error("feeds.pagehub", err, "tab", tabID)
		feeds = nil
	}
	s.post(ctx, Update{TabID: tabID, Gen: gen, Kind: UpdatePageHub, Feeds: feeds})
}

func (s *Service) resolve(ctx context.Context, tabID int, gen uint64, f types.Feed, favicon string) {
	title, err := s.parser.Title(ctx, f.URL)
	if err != nil {
		applog.Warn("feeds.parse", "tab", tabID, "url", f.URL, "err", err)
		return
	}
	f = f.Resolve(title)
	if favicon != "" {
		f.Image = favicon
	}
	s.post(ctx, Update{TabID: tabID, Gen: gen, Kind: UpdateAppendPageFeed, Feeds: []types.Feed{f}})
}

func (s *Service) post(ctx context.Context, u Update) {
	select {
	case s.updates <- u:
	case <-ctx.Done():
	}
}

func (s *Service) remember(tabID int, gen uint64, tab types.Tab) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[tabID] == gen {
		s.info[tabID] = tab
	}
}

// Tab returns the last known URL, title and favicon of a tab.
func (s *Service) Tab(tabID int) (types.Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.info[tabID]
	return t, ok
}

// RemoveRSS forgets everything known about a tab. Results still in flight
// for it are discarded.
func (s *Service) RemoveRSS(tabID int) {
	s.mu.Lock()
	s.gens[tabID]++
	delete(s.info, tabID)
	s.reg.Clear(tabID)
	s.mu.Unlock()
	s.notify(tabID)
}

// AddPageRSS appends one feed reported by the page after load. A nil feed
// is ignored.
func (s *Service) AddPageRSS(ctx context.Context, feed *types.Feed, tabID int) {
	if feed == nil {
		return
	}
	f := *feed
	gen := s.gen(tabID)
	go func() {
		if s.tabs != nil {
			tab, err := s.tabs.Tab(ctx, tabID)
			if err != nil {
				applog.Error("feeds.tab", err, "tab", tabID)
			} else {
				s.remember(tabID, gen, tab)
				if tab.Favicon != "" {
					f.Image = tab.Favicon
				}
			}
		}
		s.post(ctx, Update{TabID: tabID, Gen: gen, Kind: UpdateAppendPageFeed, Feeds: []types.Feed{f}})
	}()
}

// Tabs returns the IDs of tabs with stored collections.
func (s *Service) Tabs() []int {
	return s.reg.Tabs()
}

// GetAllRSS returns the tab's collections.
func (s *Service) GetAllRSS(tabID int) types.Bundle {
	return s.reg.Get(tabID)
}

// RefreshAll re-presents every known tab.
func (s *Service) RefreshAll(ctx context.Context) {
	for _, id := range s.reg.Tabs() {
		s.post(ctx, Update{TabID: id, Gen: s.gen(id), Kind: UpdatePresent})
	}
}

// Apply writes one update to the registry and presents the tab. It
// reports false when the update was dropped as stale, or when it asks to
// present a tab that is not tracked.
func (s *Service) Apply(ctx context.Context, u Update) bool {
	if !s.write(u) {
		applog.Info("feeds.skip", "tab", u.TabID, "kind", u.Kind)
		return false
	}
	if s.presenter != nil {
		s.presenter.Present(ctx, u.TabID)
	}
	s.notify(u.TabID)
	return true
}

// write applies u to the registry unless a newer population or a removal
// happened since u was started.
func (s *Service) write(u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Gen != s.gens[u.TabID] {
		return false
	}

	switch u.Kind {
	case UpdateFavicon:
		s.reg.SetFavicon(u.TabID, u.Favicon)
	case UpdateAppendPageFeed:
		for _, f := range u.Feeds {
			s.reg.AppendPageFeed(u.TabID, f)
		}
	case UpdatePageHub:
		s.reg.SetPageHubFeeds(u.TabID, u.Feeds)
	case UpdateSiteHub:
		s.reg.SetSiteHubFeeds(u.TabID, u.Feeds)
	case UpdatePresent:
		return s.reg.Has(u.TabID)
	}
	return true
}

// Run applies updates until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case u := <-s.updates:
			s.Apply(ctx, u)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
