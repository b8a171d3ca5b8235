package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"github.com/lotas/tabfeeds/internal/applog"
	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/config"
	"github.com/lotas/tabfeeds/internal/feedparse"
	"github.com/lotas/tabfeeds/internal/feeds"
	"github.com/lotas/tabfeeds/internal/hub"
	"github.com/lotas/tabfeeds/internal/registry"
	"github.com/lotas/tabfeeds/internal/rules"
	"github.com/lotas/tabfeeds/internal/schedule"
	"github.com/lotas/tabfeeds/internal/server"
	"github.com/lotas/tabfeeds/internal/storage"
	"github.com/lotas/tabfeeds/internal/tui"
)

// app holds the stores every command shares.
type app struct {
	cfg       *config.Store
	db        *sql.DB
	subs      *storage.SubscriptionStore
	rules     *rules.Store
	refresher *rules.Refresher
}

func openApp(configDir string) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	c := cfg.Get()
	if err := applog.Init(c.Log.Dir); err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	db, err := storage.OpenDB(storage.DBPath(c.DataDir))
	if err != nil {
		applog.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	rs, err := rules.Open(rules.DefaultPath(c.DataDir))
	if err != nil {
		db.Close()
		applog.Close()
		return nil, fmt.Errorf("%w (is another tabfeeds running?)", err)
	}

	return &app{
		cfg:   cfg,
		db:    db,
		subs:  storage.NewSubscriptionStore(db),
		rules: rs,
		refresher: rules.NewRefresher(rs, func() string {
			return cfg.Get().Rules.URL
		}, nil),
	}, nil
}

func (a *app) Close() {
	a.rules.Close()
	a.db.Close()
	applog.Close()
}

// live is the running server together with the feed service it drives.
type live struct {
	srv     *server.Server
	bridge  *server.Bridge
	svc     *feeds.Service
	badges  *badge.Presenter
	sched   *schedule.Scheduler
	changes chan int
}

func (a *app) newLive() (*live, error) {
	c := a.cfg.Get()
	parser, err := feedparse.New(c.Parser.Timeout, c.Parser.CacheSize)
	if err != nil {
		return nil, err
	}

	srv := server.New(c.Server.Port)
	bridge := server.NewBridge(srv)
	reg := registry.New()
	presenter := badge.NewPresenter(a.subs, reg, bridge, a.cfg)

	svc := feeds.New(feeds.Deps{
		Registry:  reg,
		Presenter: presenter,
		Tabs:      bridge,
		Messenger: bridge,
		Executor:  hub.NewExecutor(func() string { return a.cfg.Get().RSSHub.BaseURL }),
		Parser:    parser,
		Rules:     a.rules,
	})

	sched := schedule.New(func(ctx context.Context) error {
		n, err := a.refresher.Refresh(ctx)
		if err == nil {
			applog.Info("rules.refreshed", "count", n)
		}
		return err
	}, a.rules.Date, func() time.Duration {
		return a.cfg.Get().RefreshInterval()
	})

	l := &live{
		srv:     srv,
		bridge:  bridge,
		svc:     svc,
		badges:  presenter,
		sched:   sched,
		changes: make(chan int, 64),
	}
	svc.OnChange(func(tabID int) {
		select {
		case l.changes <- tabID:
		default:
		}
	})
	return l, nil
}

// runLive serves the extension until ctx is done.
func (a *app) runLive(ctx context.Context) error {
	l, err := a.newLive()
	if err != nil {
		return err
	}
	return a.serve(ctx, l)
}

func (a *app) serve(ctx context.Context, l *live) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.subs.OnChange(func() { l.svc.RefreshAll(ctx) })
	a.rules.OnChange(func() { l.svc.RefreshAll(ctx) })
	a.cfg.OnChange(func(old, cur config.Config) {
		if old.RefreshTimeout != cur.RefreshTimeout {
			l.sched.Init(ctx)
		}
		if old.Notice.Badge != cur.Notice.Badge {
			l.svc.RefreshAll(ctx)
		}
	})
	a.cfg.Watch()

	l.sched.Init(ctx)
	defer l.sched.Stop()

	d := feeds.NewDispatcher(l.svc, a.subs, l.bridge, l.sched.Init)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.srv.ListenAndServe(ctx) })
	g.Go(func() error { return l.svc.Run(ctx) })
	g.Go(func() error {
		d.Serve(ctx, l.srv.Messages())
		return ctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

// runDashboard serves the extension in the background and shows the
// dashboard in the foreground. Quitting the dashboard stops the server.
func (a *app) runDashboard() error {
	l, err := a.newLive()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.NewModel(tui.Deps{
		Feeds:        l.svc,
		Badges:       l.badges,
		Subs:         a.subs,
		RefreshRules: a.refresher.Refresh,
		Connected:    l.srv.Connected,
		Port:         l.srv.Port(),
		Changes:      l.changes,
	})
	p := tea.NewProgram(model, tea.WithAltScreen())

	var serveErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.serve(ctx, l); err != nil && !errors.Is(err, context.Canceled) {
			// A server that fails to start ends the dashboard too.
			serveErr = err
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		return err
	}
	cancel()

	select {
	case <-done:
		return serveErr
	case <-time.After(2 * time.Second):
		return nil
	}
}
