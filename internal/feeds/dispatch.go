package feeds

import (
	"context"
	"fmt"

	"github.com/lotas/tabfeeds/internal/applog"
	"github.com/lotas/tabfeeds/internal/discover"
	"github.com/lotas/tabfeeds/internal/server"
	"github.com/lotas/tabfeeds/internal/types"
)

// Replier answers rss.get requests from the extension.
type Replier interface {
	SendBundle(id string, tabID int, b types.Bundle) error
}

// Subscriptions changes the user's subscription list.
type Subscriptions interface {
	Subscribe(subURL, title string) error
	Unsubscribe(subURL string) error
}

// Dispatcher routes extension messages to the service.
type Dispatcher struct {
	svc      *Service
	subs     Subscriptions
	reply    Replier
	onActive func(ctx context.Context)
}

// NewDispatcher returns a dispatcher. onActive runs when the browser
// leaves the idle state; it may be nil.
func NewDispatcher(svc *Service, subs Subscriptions, reply Replier, onActive func(ctx context.Context)) *Dispatcher {
	return &Dispatcher{svc: svc, subs: subs, reply: reply, onActive: onActive}
}

// Serve handles messages until msgs is closed or ctx is done.
func (d *Dispatcher) Serve(ctx context.Context, msgs <-chan server.IncomingMsg) {
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := d.Handle(ctx, msg); err != nil {
				applog.Error("dispatch", err, "type", msg.Type, "tab", msg.TabID)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Handle processes one message.
func (d *Dispatcher) Handle(ctx context.Context, msg server.IncomingMsg) error {
	switch msg.Type {
	case server.TypePageRSS:
		feeds, err := server.ParseFeeds(msg.Feeds)
		if err != nil {
			return err
		}
		if msg.HTML != "" {
			found, err := discover.Feeds(msg.HTML, msg.URL)
			if err != nil {
				applog.Warn("dispatch.discover", "tab", msg.TabID, "err", err)
			}
			feeds = append(feeds, found...)
		}
		d.svc.HandleRSS(ctx, feeds, msg.TabID, msg.UseCache)

	case server.TypeFeed:
		feed, err := server.ParseFeed(msg.Feed)
		if err != nil {
			return err
		}
		d.svc.AddPageRSS(ctx, feed, msg.TabID)

	case server.TypeTabRemoved:
		d.svc.RemoveRSS(msg.TabID)

	case server.TypeTabUpdated:
		tabID := msg.TabID
		if len(msg.Tab) > 0 {
			tab, err := server.ParseTab(msg.Tab)
			if err != nil {
				return err
			}
			if tab.ID != 0 {
				tabID = tab.ID
			}
		}
		d.svc.RemoveRSS(tabID)

	case server.TypeGetAll:
		if d.reply == nil {
			return nil
		}
		return d.reply.SendBundle(msg.ID, msg.TabID, d.svc.GetAllRSS(msg.TabID))

	case server.TypeSubAdd:
		if msg.URL == "" {
			return fmt.Errorf("sub.add: missing url")
		}
		return d.subs.Subscribe(msg.URL, msg.Title)

	case server.TypeSubRemove:
		if msg.URL == "" {
			return fmt.Errorf("sub.remove: missing url")
		}
		return d.subs.Unsubscribe(msg.URL)

	case server.TypeIdle:
		if msg.State == "active" && d.onActive != nil {
			d.onActive(ctx)
		}

	case "":
		// late reply to a request that already gave up

	default:
		applog.Warn("dispatch.unknown", "type", msg.Type)
	}
	return nil
}
