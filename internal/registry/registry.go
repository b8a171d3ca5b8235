package registry

import (
	"sort"
	"sync"

	"github.com/lotas/tabfeeds/internal/types"
)

// entry holds the three collections of one tab. All three are created
// together so a tab is either unseen or fully initialized.
type entry struct {
	page    []types.Feed
	pageHub []types.Feed
	siteHub []types.Feed
}

// Registry owns the feed collections of every tab. Entries are removed
// only through Clear, when the surrounding code reports the tab closed
// or navigated away.
type Registry struct {
	mu   sync.RWMutex
	tabs map[int]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tabs: make(map[int]*entry)}
}

// get returns the entry for tabID, creating it if needed. Caller holds mu.
func (r *Registry) get(tabID int) *entry {
	e, ok := r.tabs[tabID]
	if !ok {
		e = &entry{page: []types.Feed{}, pageHub: []types.Feed{}, siteHub: []types.Feed{}}
		r.tabs[tabID] = e
	}
	return e
}

// Init creates empty collections for an unseen tab. Existing data is kept.
func (r *Registry) Init(tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(tabID)
}

// SetPageFeeds replaces the on-page collection with the confirmed feeds.
// Pending feeds are dropped here; they arrive later through AppendPageFeed
// once resolved. A non-empty favicon replaces each feed's image.
func (r *Registry) SetPageFeeds(tabID int, feeds []types.Feed, favicon string) {
	out := make([]types.Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.IsPending() {
			continue
		}
		if favicon != "" {
			f.Image = favicon
		}
		out = append(out, f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(tabID).page = out
}

// SetFavicon sets the image of every on-page feed to favicon. An empty
// favicon changes nothing.
func (r *Registry) SetFavicon(tabID int, favicon string) {
	if favicon == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.get(tabID)
	for i := range e.page {
		e.page[i].Image = favicon
	}
}

// AppendPageFeed adds a confirmed feed to the on-page collection.
func (r *Registry) AppendPageFeed(tabID int, feed types.Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.get(tabID)
	e.page = append(e.page, feed)
}

// SetPageHubFeeds replaces the page-hub collection. nil means none found.
func (r *Registry) SetPageHubFeeds(tabID int, feeds []types.Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(tabID).pageHub = clone(feeds)
}

// SetSiteHubFeeds replaces the site-hub collection. nil means none found.
func (r *Registry) SetSiteHubFeeds(tabID int, feeds []types.Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(tabID).siteHub = clone(feeds)
}

// Get returns a copy of the tab's collections. Unknown tabs report empty
// collections.
func (r *Registry) Get(tabID int) types.Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tabs[tabID]
	if !ok {
		return types.Bundle{
			PageFeeds:    []types.Feed{},
			PageHubFeeds: []types.Feed{},
			SiteHubFeeds: []types.Feed{},
		}
	}
	return types.Bundle{
		PageFeeds:    clone(e.page),
		PageHubFeeds: clone(e.pageHub),
		SiteHubFeeds: clone(e.siteHub),
	}
}

// Has reports whether the tab has been seen.
func (r *Registry) Has(tabID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tabs[tabID]
	return ok
}

// HasPageFeeds reports whether the tab's on-page collection is non-empty.
func (r *Registry) HasPageFeeds(tabID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tabs[tabID]
	return ok && len(e.page) > 0
}

// Tabs returns the known tab IDs in ascending order.
func (r *Registry) Tabs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.tabs))
	for id := range r.tabs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Clear removes all three collections for the tab.
func (r *Registry) Clear(tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, tabID)
}

func clone(feeds []types.Feed) []types.Feed {
	out := make([]types.Feed, len(feeds))
	copy(out, feeds)
	return out
}
