package badge

import (
	"context"
	"strconv"

	"github.com/lotas/tabfeeds/internal/applog"
	"github.com/lotas/tabfeeds/internal/types"
	"github.com/lotas/tabfeeds/internal/urlmatch"
)

// Badge is what the toolbar icon shows for one tab.
type Badge struct {
	Text    string
	Color   string
	Verdict types.Verdict
}

// Decide computes the badge for a tab from its feeds and the subscription
// list. Only on-page feeds take part in the subscription verdict; hub
// feeds contribute to the count.
func Decide(b types.Bundle, subs []types.Subscription, showText bool) Badge {
	verdict := types.NoneSubscribed
	switch {
	case len(subs) == 0:
	case urlmatch.HasUnsubscribedAfterSubscribing(b.PageFeeds, subs):
		verdict = types.UnsubscribedAfter
	case urlmatch.AllSubscribed(b.PageFeeds, subs):
		verdict = types.FullySubscribed
	}

	text := ""
	if n := len(b.PageFeeds) + len(b.PageHubFeeds); n > 0 {
		text = strconv.Itoa(n)
	} else if len(b.SiteHubFeeds) > 0 {
		text = " "
	}
	if !showText {
		text = ""
	}

	return Badge{Text: text, Color: verdict.Color(), Verdict: verdict}
}

// SubscriptionSource provides the user's current subscription list.
type SubscriptionSource interface {
	Subscriptions(ctx context.Context) ([]types.Subscription, error)
}

// BundleSource provides the feed collections of a tab.
type BundleSource interface {
	Get(tabID int) types.Bundle
}

// Renderer paints a badge on the toolbar icon of a tab.
type Renderer interface {
	SetBadge(ctx context.Context, tabID int, b Badge) error
}

// Options reports whether badge text is shown.
type Options interface {
	BadgeEnabled() bool
}

// Presenter recomputes and renders the badge of a tab. It holds no state
// of its own, so calling Present repeatedly is safe.
type Presenter struct {
	subs     SubscriptionSource
	bundles  BundleSource
	renderer Renderer
	opts     Options
}

func NewPresenter(subs SubscriptionSource, bundles BundleSource, renderer Renderer, opts Options) *Presenter {
	return &Presenter{subs: subs, bundles: bundles, renderer: renderer, opts: opts}
}

// Compute returns the badge for tabID without rendering it.
func (p *Presenter) Compute(ctx context.Context, tabID int) Badge {
	subs, err := p.subs.Subscriptions(ctx)
	if err != nil {
		applog.Error("badge.subs", err, "tab", tabID)
		subs = nil
	}
	show := true
	if p.opts != nil {
		show = p.opts.BadgeEnabled()
	}
	return Decide(p.bundles.Get(tabID), subs, show)
}

// Present computes the badge for tabID and hands it to the renderer.
func (p *Presenter) Present(ctx context.Context, tabID int) Badge {
	b := p.Compute(ctx, tabID)
	if err := p.renderer.SetBadge(ctx, tabID, b); err != nil {
		applog.Error("badge.render", err, "tab", tabID)
	}
	return b
}
