package server

import (
	"context"
	"fmt"

	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/types"
)

// Bridge exposes the extension as the collaborators the feed service
// needs: tab lookup, page HTML and badge rendering.
type Bridge struct {
	srv *Server
}

func NewBridge(srv *Server) *Bridge {
	return &Bridge{srv: srv}
}

// Tab asks the extension for the current state of a tab.
func (b *Bridge) Tab(ctx context.Context, tabID int) (types.Tab, error) {
	reply, err := b.srv.Request(ctx, OutgoingMsg{Action: ActionGetTab, TabID: tabID})
	if err != nil {
		return types.Tab{}, err
	}
	if len(reply.Tab) == 0 {
		return types.Tab{}, fmt.Errorf("getTab %d: empty reply", tabID)
	}
	tab, err := ParseTab(reply.Tab)
	if err != nil {
		return types.Tab{}, err
	}
	if tab.ID == 0 {
		tab.ID = tabID
	}
	return tab, nil
}

// PageHTML asks the content script of a tab for the page's HTML.
func (b *Bridge) PageHTML(ctx context.Context, tabID int) (string, error) {
	reply, err := b.srv.Request(ctx, OutgoingMsg{Action: ActionGetHTML, TabID: tabID})
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// SetBadge paints the toolbar badge of a tab.
func (b *Bridge) SetBadge(_ context.Context, tabID int, bd badge.Badge) error {
	return b.srv.Send(OutgoingMsg{
		ID:     fmt.Sprintf("badge-%d", tabID),
		Action: ActionSetBadge,
		TabID:  tabID,
		Badge:  &BadgePayload{Text: bd.Text, Color: bd.Color},
	})
}

// SendBundle answers an rss.get request.
func (b *Bridge) SendBundle(id string, tabID int, bundle types.Bundle) error {
	return b.srv.Send(OutgoingMsg{
		ID:     id,
		Action: ActionAllRSS,
		TabID:  tabID,
		Bundle: EncodeBundle(bundle),
	})
}
