package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/storage"
	"github.com/lotas/tabfeeds/internal/types"
)

// Feeds is the live feed state of browser tabs.
type Feeds interface {
	Tabs() []int
	GetAllRSS(tabID int) types.Bundle
	Tab(tabID int) (types.Tab, bool)
}

// Badges computes the badge a tab currently shows.
type Badges interface {
	Compute(ctx context.Context, tabID int) badge.Badge
}

// Subscriptions reads and edits the subscription list.
type Subscriptions interface {
	Subscriptions(ctx context.Context) ([]types.Subscription, error)
	Subscribe(subURL, title string) error
	Unsubscribe(subURL string) error
}

// Deps are what the dashboard reads from and acts on.
type Deps struct {
	Feeds        Feeds
	Badges       Badges
	Subs         Subscriptions
	RefreshRules func(ctx context.Context) (int, error)
	Connected    func() bool
	Port         int
	Changes      <-chan int // tab IDs whose feeds or badge changed
}

// --- Messages ---

type changedMsg struct{ tabID int }

type reloadedMsg struct {
	rows []Row
	subs []types.Subscription
	err  error
}

type statusMsg struct {
	text string
	err  error
}

type tickMsg struct{}

// --- Model ---

type Model struct {
	deps Deps

	list      ListModel
	detail    DetailModel
	subs      []types.Subscription
	connected bool
	status    string
	err       error
	width     int
	height    int
}

func NewModel(deps Deps) Model {
	return Model{deps: deps}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		reload(m.deps),
		waitForChange(m.deps.Changes),
		tick(),
	)
}

func reload(d Deps) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		subs, err := d.Subs.Subscriptions(ctx)
		var rows []Row
		for _, id := range d.Feeds.Tabs() {
			tab, _ := d.Feeds.Tab(id)
			rows = append(rows, Row{
				ID:     id,
				Tab:    tab,
				Bundle: d.Feeds.GetAllRSS(id),
				Badge:  d.Badges.Compute(ctx, id),
			})
		}
		return reloadedMsg{rows: rows, subs: subs, err: err}
	}
}

func waitForChange(ch <-chan int) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		id, ok := <-ch
		if !ok {
			return nil
		}
		return changedMsg{tabID: id}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

// subscribeAll subscribes to every on-page feed of a tab.
func subscribeAll(subs Subscriptions, feeds []types.Feed) tea.Cmd {
	return func() tea.Msg {
		for _, f := range feeds {
			if err := subs.Subscribe(f.URL, f.Title); err != nil {
				return statusMsg{err: err}
			}
		}
		return statusMsg{text: fmt.Sprintf("subscribed to %d feeds", len(feeds))}
	}
}

// unsubscribeAll unsubscribes from every on-page feed of a tab that has a
// subscription entry.
func unsubscribeAll(subs Subscriptions, feeds []types.Feed) tea.Cmd {
	return func() tea.Msg {
		n := 0
		for _, f := range feeds {
			err := subs.Unsubscribe(f.URL)
			if errors.Is(err, storage.ErrNotSubscribed) {
				continue
			}
			if err != nil {
				return statusMsg{err: err}
			}
			n++
		}
		return statusMsg{text: fmt.Sprintf("unsubscribed from %d feeds", n)}
	}
}

func refreshRules(fn func(ctx context.Context) (int, error)) tea.Cmd {
	return func() tea.Msg {
		if fn == nil {
			return statusMsg{text: "rules refresh unavailable"}
		}
		n, err := fn(context.Background())
		if err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: fmt.Sprintf("rules refreshed (%d)", n)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		listWidth := m.width * ListWidthPct / 100
		paneHeight := m.height - 5 // top bar + bottom bar
		m.list.Width = listWidth
		m.list.Height = paneHeight
		m.detail.Width = m.width - listWidth - 3 // borders
		m.detail.Height = paneHeight
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			m.list.MoveUp()
			m.detail.ResetScroll()
		case "down", "j":
			m.list.MoveDown()
			m.detail.ResetScroll()
		case "pgdown":
			m.detail.ScrollDown()
		case "pgup":
			m.detail.ScrollUp()
		case "s":
			if row := m.list.Selected(); row != nil && len(row.Bundle.PageFeeds) > 0 {
				return m, subscribeAll(m.deps.Subs, row.Bundle.PageFeeds)
			}
		case "u":
			if row := m.list.Selected(); row != nil && len(row.Bundle.PageFeeds) > 0 {
				return m, unsubscribeAll(m.deps.Subs, row.Bundle.PageFeeds)
			}
		case "r":
			m.status = "refreshing rules..."
			return m, refreshRules(m.deps.RefreshRules)
		}
		return m, nil

	case changedMsg:
		return m, tea.Batch(reload(m.deps), waitForChange(m.deps.Changes))

	case reloadedMsg:
		m.list.SetRows(msg.rows)
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.subs = msg.subs
		}
		return m, nil

	case statusMsg:
		m.err = msg.err
		m.status = msg.text
		return m, reload(m.deps)

	case tickMsg:
		if m.deps.Connected != nil {
			m.connected = m.deps.Connected()
		}
		return m, tick()
	}

	return m, nil
}

func (m Model) feedCount() int {
	n := 0
	for _, r := range m.list.Rows {
		n += len(r.Bundle.PageFeeds) + len(r.Bundle.PageHubFeeds)
	}
	return n
}

func (m Model) View() string {
	status := m.status
	if m.err != nil {
		status = "error: " + m.err.Error()
	}
	topBar := renderTopBar(m.connected, m.deps.Port, len(m.list.Rows), m.feedCount(), status, m.width)

	listBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(m.list.Width).
		Height(m.list.Height)

	detailBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.detail.Width).
		Height(m.detail.Height)

	detailContent := m.detail.ViewScrolled(m.detail.ViewRow(m.list.Selected(), m.subs))

	left := listBorder.Render(m.list.View())
	right := detailBorder.Render(detailContent)
	panes := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	bottomText := "↑↓/jk navigate · pgup/pgdn scroll · s subscribe · u unsubscribe · r refresh rules · q quit"
	bottomBar := bottomBarStyle.Render(bottomText)

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottomBar)
}
