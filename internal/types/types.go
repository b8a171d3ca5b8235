package types

import "time"

// FeedKind distinguishes feeds whose metadata is known from feeds that
// were found heuristically and still need a fetch to confirm them.
type FeedKind int

const (
	Confirmed FeedKind = iota
	Pending
)

// Feed is a discovered syndication source.
type Feed struct {
	Kind  FeedKind
	URL   string
	Title string
	Image string
}

// NewConfirmed returns a confirmed feed.
func NewConfirmed(url, title, image string) Feed {
	return Feed{Kind: Confirmed, URL: url, Title: title, Image: image}
}

// NewPending returns a feed that must be resolved by the feed parser
// before it is counted.
func NewPending(url string) Feed {
	return Feed{Kind: Pending, URL: url}
}

// IsPending reports whether the feed still needs confirmation.
func (f Feed) IsPending() bool {
	return f.Kind == Pending
}

// Resolve turns a pending feed into a confirmed one with the given title.
func (f Feed) Resolve(title string) Feed {
	f.Kind = Confirmed
	f.Title = title
	return f
}

// Status is the user's subscription state for a feed URL. The numeric
// values match what the extension stores.
type Status int

const (
	Unsubscribed Status = -1
	Subscribed   Status = 1
)

func (s Status) String() string {
	switch s {
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Subscription records that the user subscribed to a feed URL. Entries are
// never deleted; unsubscribing flips Status so the history is kept.
type Subscription struct {
	SubURL    string
	Title     string
	Status    Status
	UpdatedAt time.Time
}

// Bundle holds the three feed collections tracked for one tab.
type Bundle struct {
	PageFeeds    []Feed // declared on the page
	PageHubFeeds []Feed // matched by hub rules for this page
	SiteHubFeeds []Feed // offered by hub rules for the whole site
}

// Tab is the subset of browser tab info the feed core needs.
type Tab struct {
	ID      int
	URL     string
	Title   string
	Favicon string
}

// Profile represents a Firefox profile.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// SessionTab is a tab read from a Firefox session file.
type SessionTab struct {
	URL          string
	Title        string
	LastAccessed time.Time
	Favicon      string
	WindowIndex  int
	TabIndex     int
}

// SessionData holds the tabs parsed from a Firefox session.
type SessionData struct {
	Tabs     []*SessionTab
	Profile  Profile
	ParsedAt time.Time
}

// Verdict summarizes how the feeds of a tab relate to the subscription list.
type Verdict int

const (
	NoneSubscribed Verdict = iota
	UnsubscribedAfter
	FullySubscribed
)

func (v Verdict) String() string {
	switch v {
	case FullySubscribed:
		return "subscribed"
	case UnsubscribedAfter:
		return "unsubscribed-after"
	default:
		return "none"
	}
}

// Badge colors painted on the toolbar icon.
const (
	ColorDefault    = "#FF2800"
	ColorWarning    = "#E1E100"
	ColorSubscribed = "#008000"
	ColorText       = "#fff"
)

// Color returns the badge background color for the verdict.
func (v Verdict) Color() string {
	switch v {
	case FullySubscribed:
		return ColorSubscribed
	case UnsubscribedAfter:
		return ColorWarning
	default:
		return ColorDefault
	}
}
