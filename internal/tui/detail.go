package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabfeeds/internal/types"
	"github.com/lotas/tabfeeds/internal/urlmatch"
)

// DetailModel shows the feeds of the selected tab.
type DetailModel struct {
	Width      int
	Height     int
	Scroll     int // scroll offset
	ContentLen int // total lines in content
}

// ScrollUp adjusts the scroll offset upward.
func (m *DetailModel) ScrollUp() {
	if m.Scroll > 0 {
		m.Scroll--
	}
}

// ScrollDown adjusts the scroll offset downward.
func (m *DetailModel) ScrollDown() {
	if m.Scroll < m.ContentLen-m.Height {
		m.Scroll++
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}
}

// ResetScroll resets the scroll offset to 0.
func (m *DetailModel) ResetScroll() {
	m.Scroll = 0
}

// feedState reports how the user's list relates to one feed URL.
func feedState(feedURL string, subs []types.Subscription) string {
	if urlmatch.IsSubscribed(feedURL, subs) {
		return "subscribed"
	}
	for _, s := range subs {
		if s.SubURL == feedURL && s.Status == types.Unsubscribed {
			return "unsubscribed"
		}
	}
	return ""
}

func (m DetailModel) ViewRow(row *Row, subs []types.Subscription) string {
	if row == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	subStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	unsubStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	var b strings.Builder

	if row.Tab.Title != "" {
		b.WriteString(labelStyle.Render("Title") + "\n")
		title := row.Tab.Title
		if m.Width > 3 && len(title) > m.Width-2 {
			title = title[:m.Width-3] + "…"
		}
		b.WriteString(valueStyle.Render(title) + "\n\n")
	}

	b.WriteString(labelStyle.Render("URL") + "\n")
	url := row.Label()
	// Wrap long URLs
	for m.Width > 2 && len(url) > m.Width-2 {
		b.WriteString(valueStyle.Render(url[:m.Width-2]) + "\n")
		url = url[m.Width-2:]
	}
	b.WriteString(valueStyle.Render(url) + "\n\n")

	b.WriteString(labelStyle.Render("Badge") + " " + badgeCell(row.Badge) + " " + dimStyle.Render(row.Badge.Verdict.String()) + "\n")

	sections := []struct {
		name  string
		feeds []types.Feed
	}{
		{"On page", row.Bundle.PageFeeds},
		{"RSSHub for this page", row.Bundle.PageHubFeeds},
		{"RSSHub for this site", row.Bundle.SiteHubFeeds},
	}
	for _, s := range sections {
		if len(s.feeds) == 0 {
			continue
		}
		b.WriteString("\n" + labelStyle.Render(s.name) + "\n")
		for _, f := range s.feeds {
			title := f.Title
			if title == "" {
				title = f.URL
			}
			line := "  " + title
			switch feedState(f.URL, subs) {
			case "subscribed":
				line += " " + subStyle.Render("✓")
			case "unsubscribed":
				line += " " + unsubStyle.Render("✗")
			}
			b.WriteString(line + "\n")
			b.WriteString(dimStyle.Render("    "+f.URL) + "\n")
		}
	}

	return b.String()
}

// ViewScrolled applies scroll offset and height truncation to the content string.
func (m *DetailModel) ViewScrolled(content string) string {
	if content == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	m.ContentLen = len(lines)

	// Clamp scroll
	maxScroll := m.ContentLen - m.Height
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.Scroll > maxScroll {
		m.Scroll = maxScroll
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}

	end := m.Scroll + m.Height
	if end > len(lines) || m.Height <= 0 {
		end = len(lines)
	}

	if m.Scroll >= len(lines) {
		return ""
	}

	return strings.Join(lines[m.Scroll:end], "\n")
}
