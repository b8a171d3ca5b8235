package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lotas/tabfeeds/internal/applog"
	"github.com/lotas/tabfeeds/internal/hub"
)

const maxRulesSize = 16 << 20

// Refresher downloads the rule set and stores it. Overlapping calls share
// one download.
type Refresher struct {
	store  *Store
	url    func() string
	client *http.Client
	now    func() time.Time
	group  singleflight.Group
}

// NewRefresher returns a refresher fetching from url(). A nil client uses
// a client with a 30 second timeout.
func NewRefresher(store *Store, url func() string, client *http.Client) *Refresher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Refresher{store: store, url: url, client: client, now: time.Now}
}

// Refresh downloads and saves the rules. It returns the number of rules
// stored.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	v, err, shared := r.group.Do("refresh", func() (any, error) {
		return r.refresh(ctx)
	})
	if shared {
		applog.Info("rules.refresh.shared")
	}
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (r *Refresher) refresh(ctx context.Context) (int, error) {
	src := r.url()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return 0, fmt.Errorf("build rules request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch rules: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRulesSize))
	if err != nil {
		return 0, fmt.Errorf("read rules: %w", err)
	}
	var rs hub.Rules
	if err := json.Unmarshal(data, &rs); err != nil {
		return 0, fmt.Errorf("decode rules: %w", err)
	}
	if err := r.store.Save(rs, r.now()); err != nil {
		return 0, err
	}
	applog.Info("rules.refreshed", "url", src, "sites", len(rs), "rules", rs.Count())
	return rs.Count(), nil
}
