package hub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/lotas/tabfeeds/internal/types"
)

// Command names understood by Executor.
const (
	CmdPageHub = "getPageRSSHub"
	CmdSiteHub = "getWebsiteRSSHub"
)

var ErrUnknownCommand = errors.New("unknown hub command")

// Args is the input of a hub command.
type Args struct {
	URL   string
	HTML  string // page markup; only used by CmdPageHub
	Rules Rules
}

// Executor runs hub extraction commands. BaseURL is read on every call so
// configuration changes apply to the next extraction.
type Executor struct {
	BaseURL func() string
}

// NewExecutor returns an executor resolving targets against base().
func NewExecutor(base func() string) *Executor {
	return &Executor{BaseURL: base}
}

// Run executes a named extraction command.
func (e *Executor) Run(ctx context.Context, command string, args Args) ([]types.Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch command {
	case CmdPageHub:
		return PageHub(args.URL, args.HTML, args.Rules, e.BaseURL())
	case CmdSiteHub:
		return SiteHub(args.URL, args.Rules)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

// splitHost returns the registrable domain and the subdomain of a page URL.
// The bare domain uses "." as its subdomain key.
func splitHost(pageURL string) (domain, sub string, u *url.URL, err error) {
	u, err = url.Parse(pageURL)
	if err != nil {
		return "", "", nil, fmt.Errorf("parse page url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", "", nil, fmt.Errorf("page url %q has no host", pageURL)
	}
	domain, err = publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", "", nil, fmt.Errorf("registrable domain of %s: %w", host, err)
	}
	sub = strings.TrimSuffix(strings.TrimSuffix(host, domain), ".")
	if sub == "" {
		sub = "."
	}
	return domain, sub, u, nil
}

// PageHub returns the feed routes whose source patterns match the page.
// Rules carrying a selector apply only if html contains a match.
func PageHub(pageURL, html string, rules Rules, baseURL string) ([]types.Feed, error) {
	domain, sub, u, err := splitHost(pageURL)
	if err != nil {
		return nil, err
	}
	site, ok := rules[domain]
	if !ok {
		return []types.Feed{}, nil
	}
	// Clip so the merge never writes into the shared rule set.
	candidates := slices.Clip(site.Subdomains[sub])
	if sub == "www" {
		candidates = append(candidates, site.Subdomains["."]...)
	}

	var doc *goquery.Document
	base := strings.TrimRight(baseURL, "/")
	out := []types.Feed{}
	seen := make(map[string]bool)

	for _, rule := range candidates {
		if rule.Selector != "" {
			if doc == nil {
				if html == "" {
					continue
				}
				doc, err = goquery.NewDocumentFromReader(strings.NewReader(html))
				if err != nil {
					return nil, fmt.Errorf("parse page html: %w", err)
				}
			}
			if doc.Find(rule.Selector).Length() == 0 {
				continue
			}
		}
		for _, pattern := range rule.Source {
			params, ok := matchPath(pattern, u.Path)
			if !ok {
				continue
			}
			target, ok := fillTarget(rule.Target, params)
			if !ok {
				continue
			}
			feedURL := base + target
			if !seen[feedURL] {
				seen[feedURL] = true
				out = append(out, types.NewConfirmed(feedURL, rule.Title, ""))
			}
			break
		}
	}
	return out, nil
}

// SiteHub returns every route documented for the page's site, regardless
// of the current path.
func SiteHub(pageURL string, rules Rules) ([]types.Feed, error) {
	domain, _, _, err := splitHost(pageURL)
	if err != nil {
		return nil, err
	}
	site, ok := rules[domain]
	if !ok {
		return []types.Feed{}, nil
	}

	subs := make([]string, 0, len(site.Subdomains))
	for sub := range site.Subdomains {
		subs = append(subs, sub)
	}
	sort.Strings(subs)

	out := []types.Feed{}
	seen := make(map[string]bool)
	for _, sub := range subs {
		for _, rule := range site.Subdomains[sub] {
			if rule.Docs == "" || seen[rule.Docs] {
				continue
			}
			seen[rule.Docs] = true
			out = append(out, types.NewConfirmed(rule.Docs, rule.Title, ""))
		}
	}
	return out, nil
}

// matchPath matches a request path against a pattern such as
// "/user/:id/:tab?" or "/tag/*". It returns the captured parameters.
func matchPath(pattern, path string) (map[string]string, bool) {
	pSegs := segments(pattern)
	segs := segments(path)
	params := make(map[string]string)

	i := 0
	for ; i < len(pSegs); i++ {
		p := pSegs[i]
		if p == "*" {
			params["*"] = strings.Join(segs[min(i, len(segs)):], "/")
			return params, true
		}
		optional := strings.HasSuffix(p, "?")
		if i >= len(segs) {
			if optional {
				continue
			}
			return nil, false
		}
		if strings.HasPrefix(p, ":") {
			name := strings.TrimSuffix(p[1:], "?")
			params[name] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	if len(segs) > len(pSegs) {
		return nil, false
	}
	return params, true
}

// fillTarget substitutes captured parameters into a target template.
// Missing optional parameters drop their segment; a missing required one
// makes the target unusable.
func fillTarget(target string, params map[string]string) (string, bool) {
	var b strings.Builder
	for _, seg := range segments(target) {
		if seg == "*" {
			if v := params["*"]; v != "" {
				b.WriteString("/" + v)
			}
			continue
		}
		if !strings.HasPrefix(seg, ":") {
			b.WriteString("/" + seg)
			continue
		}
		optional := strings.HasSuffix(seg, "?")
		name := strings.TrimSuffix(seg[1:], "?")
		v, ok := params[name]
		if !ok || v == "" {
			if optional {
				continue
			}
			return "", false
		}
		b.WriteString("/" + v)
	}
	if b.Len() == 0 {
		return "/", true
	}
	return b.String(), true
}

func segments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
