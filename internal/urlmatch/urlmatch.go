package urlmatch

import (
	"net/url"
	"strings"

	"github.com/lotas/tabfeeds/internal/types"
)

// Variants returns the strings a discovered feed URL may be stored under:
// the URL itself, its trailing-slash twin, and, for http URLs, the https
// form. The rules are applied independently, never combined. An https URL
// has no http variant, so a stored http subscription does not cover a
// discovered https feed.
func Variants(rawURL string) []string {
	out := []string{rawURL, SlashVariant(rawURL)}
	if sec, ok := SecureVariant(rawURL); ok {
		out = append(out, sec)
	}
	return out
}

// SlashVariant strips a trailing slash, or appends one if absent.
func SlashVariant(rawURL string) string {
	if strings.HasSuffix(rawURL, "/") {
		return rawURL[:len(rawURL)-1]
	}
	return rawURL + "/"
}

// SecureVariant returns the https form of an http URL.
func SecureVariant(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "http" {
		return "", false
	}
	if !strings.HasPrefix(rawURL, "http://") {
		// Scheme was upper or mixed case; only the exact prefix is swapped.
		return "", false
	}
	return "https://" + rawURL[len("http://"):], true
}

func index(subs []types.Subscription) map[string]types.Status {
	m := make(map[string]types.Status, len(subs))
	for _, s := range subs {
		if _, ok := m[s.SubURL]; !ok {
			m[s.SubURL] = s.Status
		}
	}
	return m
}

// HasUnsubscribedAfterSubscribing reports whether any channel URL exactly
// matches a subscription the user later cancelled.
func HasUnsubscribedAfterSubscribing(channels []types.Feed, subs []types.Subscription) bool {
	if len(channels) == 0 || len(subs) == 0 {
		return false
	}
	idx := index(subs)
	for _, ch := range channels {
		if st, ok := idx[ch.URL]; ok && st == types.Unsubscribed {
			return true
		}
	}
	return false
}

// AllSubscribed reports whether every channel URL matches a subscription
// entry under any of its variants. Empty input is never "all subscribed".
func AllSubscribed(channels []types.Feed, subs []types.Subscription) bool {
	if len(channels) == 0 || len(subs) == 0 {
		return false
	}
	idx := index(subs)
	for _, ch := range channels {
		if !contains(idx, ch.URL) {
			return false
		}
	}
	return true
}

// IsSubscribed reports whether a single feed URL is covered by an entry
// with Subscribed status.
func IsSubscribed(feedURL string, subs []types.Subscription) bool {
	idx := index(subs)
	for _, v := range Variants(feedURL) {
		if st, ok := idx[v]; ok && st == types.Subscribed {
			return true
		}
	}
	return false
}

func contains(idx map[string]types.Status, feedURL string) bool {
	for _, v := range Variants(feedURL) {
		if _, ok := idx[v]; ok {
			return true
		}
	}
	return false
}
