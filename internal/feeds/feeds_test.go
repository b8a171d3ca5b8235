package feeds

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/hub"
	"github.com/lotas/tabfeeds/internal/registry"
	"github.com/lotas/tabfeeds/internal/types"
)

type fakeTabs struct {
	tabs map[int]types.Tab
	err  error
}

func (f *fakeTabs) Tab(_ context.Context, id int) (types.Tab, error) {
	if f.err != nil {
		return types.Tab{}, f.err
	}
	return f.tabs[id], nil
}

type fakeMessenger struct{ html string }

func (f *fakeMessenger) PageHTML(context.Context, int) (string, error) { return f.html, nil }

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	page  []types.Feed
	site  []types.Feed
	err   error
	block chan struct{}
}

func (f *fakeExecutor) Run(_ context.Context, cmd string, args hub.Args) ([]types.Feed, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if cmd == hub.CmdPageHub {
		return f.page, nil
	}
	return f.site, nil
}

type fakeParser struct {
	titles map[string]string
}

func (f *fakeParser) Title(_ context.Context, url string) (string, error) {
	t, ok := f.titles[url]
	if !ok {
		return "", errors.New("not a feed")
	}
	return t, nil
}

type fakeSubs struct {
	mu   sync.Mutex
	list []types.Subscription
}

func (f *fakeSubs) Subscriptions(context.Context) ([]types.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Subscription(nil), f.list...), nil
}

type fakeRenderer struct {
	mu     sync.Mutex
	badges map[int]badge.Badge
}

func (f *fakeRenderer) SetBadge(_ context.Context, tabID int, b badge.Badge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.badges == nil {
		f.badges = make(map[int]badge.Badge)
	}
	f.badges[tabID] = b
	return nil
}

func (f *fakeRenderer) get(tabID int) (badge.Badge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.badges[tabID]
	return b, ok
}

type harness struct {
	svc      *Service
	tabs     *fakeTabs
	exec     *fakeExecutor
	parser   *fakeParser
	subs     *fakeSubs
	renderer *fakeRenderer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tabs: &fakeTabs{tabs: map[int]types.Tab{
			1: {ID: 1, URL: "https://blog.example.com/posts", Favicon: "https://blog.example.com/f.ico"},
		}},
		exec:     &fakeExecutor{},
		parser:   &fakeParser{titles: map[string]string{}},
		subs:     &fakeSubs{},
		renderer: &fakeRenderer{},
	}
	reg := registry.New()
	h.svc = New(Deps{
		Registry:  reg,
		Presenter: badge.NewPresenter(h.subs, reg, h.renderer, nil),
		Tabs:      h.tabs,
		Messenger: &fakeMessenger{html: "<html></html>"},
		Executor:  h.exec,
		Parser:    h.parser,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.svc.Run(ctx)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHandleRSSPopulatesAllCollections(t *testing.T) {
	h := newHarness(t)
	h.exec.page = []types.Feed{types.NewConfirmed("https://rsshub.app/blog/posts", "Posts", "")}
	h.exec.site = []types.Feed{types.NewConfirmed("https://docs.rsshub.app/blog", "Blog", "")}
	h.parser.titles["https://blog.example.com/maybe.xml"] = "Maybe"

	h.svc.HandleRSS(context.Background(), []types.Feed{
		types.NewConfirmed("https://blog.example.com/rss", "Blog", "https://blog.example.com/logo.png"),
		types.NewPending("https://blog.example.com/maybe.xml"),
		types.NewPending("https://blog.example.com/not-a-feed.xml"),
	}, 1, false)

	waitFor(t, "all collections", func() bool {
		b := h.svc.GetAllRSS(1)
		return len(b.PageFeeds) == 2 && len(b.PageHubFeeds) == 1 && len(b.SiteHubFeeds) == 1
	})

	b := h.svc.GetAllRSS(1)
	if tab, ok := h.svc.Tab(1); !ok || tab.URL != "https://blog.example.com/posts" {
		t.Errorf("Tab(1) = %+v, %v", tab, ok)
	}
	for _, f := range b.PageFeeds {
		if f.IsPending() {
			t.Errorf("pending feed stored: %+v", f)
		}
		if f.Image != "https://blog.example.com/f.ico" {
			t.Errorf("image = %q, want tab favicon", f.Image)
		}
	}
	waitFor(t, "badge 3", func() bool {
		bd, _ := h.renderer.get(1)
		return bd.Text == "3"
	})
	if bd, _ := h.renderer.get(1); bd.Color != types.ColorDefault {
		t.Errorf("color = %q, want default", bd.Color)
	}
}

func TestHandleRSSUseCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.HandleRSS(ctx, []types.Feed{types.NewConfirmed("https://a.com/rss", "A", "")}, 1, false)
	waitFor(t, "page feeds", func() bool { return h.svc.Registry().HasPageFeeds(1) })
	waitFor(t, "hub calls", func() bool {
		h.exec.mu.Lock()
		defer h.exec.mu.Unlock()
		return len(h.exec.calls) == 2
	})

	h.svc.HandleRSS(ctx, []types.Feed{types.NewConfirmed("https://other.com/rss", "O", "")}, 1, true)
	time.Sleep(50 * time.Millisecond)

	b := h.svc.GetAllRSS(1)
	if len(b.PageFeeds) != 1 || b.PageFeeds[0].URL != "https://a.com/rss" {
		t.Errorf("cache hit should keep stored feeds, got %+v", b.PageFeeds)
	}
	h.exec.mu.Lock()
	defer h.exec.mu.Unlock()
	if len(h.exec.calls) != 2 {
		t.Errorf("cache hit should not rerun hubs, calls = %v", h.exec.calls)
	}
}

func TestHandleRSSUseCacheEmptyRepopulates(t *testing.T) {
	h := newHarness(t)
	h.svc.HandleRSS(context.Background(), []types.Feed{types.NewConfirmed("https://a.com/rss", "A", "")}, 1, true)
	waitFor(t, "page feeds", func() bool { return h.svc.Registry().HasPageFeeds(1) })
}

func TestHandleRSSTabLookupFails(t *testing.T) {
	h := newHarness(t)
	h.tabs.err = errors.New("no such tab")

	h.svc.HandleRSS(context.Background(), []types.Feed{types.NewConfirmed("https://a.com/rss", "A", "img")}, 1, false)
	waitFor(t, "page feeds", func() bool { return h.svc.Registry().HasPageFeeds(1) })

	b := h.svc.GetAllRSS(1)
	if b.PageFeeds[0].Image != "img" {
		t.Errorf("image = %q, want feed's own image", b.PageFeeds[0].Image)
	}
	time.Sleep(50 * time.Millisecond)
	h.exec.mu.Lock()
	defer h.exec.mu.Unlock()
	if len(h.exec.calls) != 0 {
		t.Errorf("hubs should be skipped, calls = %v", h.exec.calls)
	}
}

func TestHubErrorLeavesCollectionEmpty(t *testing.T) {
	h := newHarness(t)
	h.exec.err = errors.New("boom")

	h.svc.HandleRSS(context.Background(), nil, 1, false)
	waitFor(t, "hub calls", func() bool {
		h.exec.mu.Lock()
		defer h.exec.mu.Unlock()
		return len(h.exec.calls) == 2
	})
	time.Sleep(20 * time.Millisecond)

	b := h.svc.GetAllRSS(1)
	if len(b.PageHubFeeds) != 0 || len(b.SiteHubFeeds) != 0 {
		t.Errorf("got %+v", b)
	}
	if bd, _ := h.renderer.get(1); bd.Text != "" {
		t.Errorf("badge text = %q, want empty", bd.Text)
	}
}

func TestSiteHubOnlyShowsSpace(t *testing.T) {
	h := newHarness(t)
	h.exec.site = []types.Feed{types.NewConfirmed("https://docs.rsshub.app/blog", "Blog", "")}

	h.svc.HandleRSS(context.Background(), nil, 1, false)
	waitFor(t, "space badge", func() bool {
		bd, _ := h.renderer.get(1)
		return bd.Text == " "
	})
}

func TestSubscribedBadge(t *testing.T) {
	h := newHarness(t)
	h.subs.list = []types.Subscription{{SubURL: "https://a.com/rss", Status: types.Subscribed}}

	h.svc.HandleRSS(context.Background(), []types.Feed{types.NewConfirmed("http://a.com/rss/", "A", "")}, 1, false)
	waitFor(t, "page feeds", func() bool { return h.svc.Registry().HasPageFeeds(1) })
	waitFor(t, "badge", func() bool { _, ok := h.renderer.get(1); return ok })

	// http->https and trailing slash are never combined
	if bd, _ := h.renderer.get(1); bd.Color != types.ColorDefault {
		t.Errorf("color = %q, want default", bd.Color)
	}

	h.svc.RemoveRSS(1)
	h.svc.HandleRSS(context.Background(), []types.Feed{types.NewConfirmed("http://a.com/rss", "A", "")}, 1, false)
	waitFor(t, "subscribed color", func() bool {
		bd, _ := h.renderer.get(1)
		return bd.Color == types.ColorSubscribed
	})

	h.subs.mu.Lock()
	h.subs.list[0].Status = types.Unsubscribed
	h.subs.mu.Unlock()
	// an unsubscribed entry matching exactly wins
	h.svc.RemoveRSS(1)
	h.svc.HandleRSS(context.Background(), []types.Feed{types.NewConfirmed("https://a.com/rss", "A", "")}, 1, false)
	waitFor(t, "warning color", func() bool {
		bd, _ := h.renderer.get(1)
		return bd.Color == types.ColorWarning
	})
}

func TestRemoveRSS(t *testing.T) {
	h := newHarness(t)
	h.svc.HandleRSS(context.Background(), []types.Feed{types.NewConfirmed("https://a.com/rss", "A", "")}, 1, false)
	waitFor(t, "page feeds", func() bool { return h.svc.Registry().HasPageFeeds(1) })

	h.svc.RemoveRSS(1)
	if _, ok := h.svc.Tab(1); ok {
		t.Error("tab info should be forgotten")
	}
	b := h.svc.GetAllRSS(1)
	if len(b.PageFeeds) != 0 || len(b.PageHubFeeds) != 0 || len(b.SiteHubFeeds) != 0 {
		t.Errorf("after remove got %+v", b)
	}
}

func TestRemoveRSSDropsInFlightResults(t *testing.T) {
	h := newHarness(t)
	h.exec.block = make(chan struct{})
	h.exec.site = []types.Feed{types.NewConfirmed("https://docs.rsshub.app/blog", "Blog", "")}

	h.svc.HandleRSS(context.Background(), nil, 1, false)
	h.svc.RemoveRSS(1)
	close(h.exec.block)

	waitFor(t, "hub calls", func() bool {
		h.exec.mu.Lock()
		defer h.exec.mu.Unlock()
		return len(h.exec.calls) == 2
	})
	time.Sleep(50 * time.Millisecond)
	if h.svc.Registry().Has(1) {
		t.Errorf("stale results recreated tab: %+v", h.svc.GetAllRSS(1))
	}
}

func TestAddPageRSS(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.svc.AddPageRSS(ctx, nil, 1)
	f := types.NewConfirmed("https://a.com/rss", "A", "")
	h.svc.AddPageRSS(ctx, &f, 1)

	waitFor(t, "appended feed", func() bool { return h.svc.Registry().HasPageFeeds(1) })
	b := h.svc.GetAllRSS(1)
	if len(b.PageFeeds) != 1 || b.PageFeeds[0].Image != "https://blog.example.com/f.ico" {
		t.Errorf("got %+v", b.PageFeeds)
	}
	waitFor(t, "badge 1", func() bool {
		bd, _ := h.renderer.get(1)
		return bd.Text == "1"
	})
}

// slowFirstTabs delays its first lookup so later lookups overtake it.
type slowFirstTabs struct {
	mu    sync.Mutex
	calls int
	tab   types.Tab
}

func (f *slowFirstTabs) Tab(context.Context, int) (types.Tab, error) {
	f.mu.Lock()
	f.calls++
	first := f.calls == 1
	f.mu.Unlock()
	if first {
		time.Sleep(100 * time.Millisecond)
	}
	return f.tab, nil
}

func TestAddPageRSSDuringSlowLookup(t *testing.T) {
	reg := registry.New()
	svc := New(Deps{
		Registry: reg,
		Tabs:     &slowFirstTabs{tab: types.Tab{ID: 1, URL: "https://a.com/", Favicon: "https://a.com/f.ico"}},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	svc.HandleRSS(ctx, []types.Feed{types.NewConfirmed("https://a.com/rss", "A", "")}, 1, false)
	time.Sleep(10 * time.Millisecond)
	late := types.NewConfirmed("https://a.com/late", "Late", "")
	svc.AddPageRSS(ctx, &late, 1)

	waitFor(t, "favicon on both feeds", func() bool {
		b := svc.GetAllRSS(1)
		if len(b.PageFeeds) != 2 {
			return false
		}
		for _, f := range b.PageFeeds {
			if f.Image != "https://a.com/f.ico" {
				return false
			}
		}
		return true
	})
	time.Sleep(150 * time.Millisecond)

	b := svc.GetAllRSS(1)
	if len(b.PageFeeds) != 2 || b.PageFeeds[0].URL != "https://a.com/rss" || b.PageFeeds[1].URL != "https://a.com/late" {
		t.Errorf("page feeds = %+v, want rss then late", b.PageFeeds)
	}
}

func TestApplyAndRefreshAll(t *testing.T) {
	reg := registry.New()
	renderer := &fakeRenderer{}
	svc := New(Deps{Registry: reg, Presenter: badge.NewPresenter(&fakeSubs{}, reg, renderer, nil)})
	ctx := context.Background()

	if !svc.Apply(ctx, Update{TabID: 4, Kind: UpdateSiteHub, Feeds: []types.Feed{types.NewConfirmed("u", "t", "")}}) {
		t.Fatal("apply should succeed for current generation")
	}
	if svc.Apply(ctx, Update{TabID: 4, Gen: 9, Kind: UpdatePageHub}) {
		t.Error("stale generation should be dropped")
	}
	if svc.Apply(ctx, Update{TabID: 99, Kind: UpdatePresent}) {
		t.Error("present for unknown tab should be skipped")
	}

	changed := make(chan int, 4)
	svc.OnChange(func(id int) { changed <- id })

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go svc.Run(runCtx)
	svc.RefreshAll(ctx)

	select {
	case id := <-changed:
		if id != 4 {
			t.Errorf("refreshed tab %d, want 4", id)
		}
	case <-time.After(time.Second):
		t.Fatal("RefreshAll did not present")
	}
	if bd, _ := renderer.get(4); bd.Text != " " {
		t.Errorf("badge = %+v", bd)
	}
}
