package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabfeeds/internal/badge"
	"github.com/lotas/tabfeeds/internal/types"
)

// Row is one tracked browser tab.
type Row struct {
	ID     int
	Tab    types.Tab // zero if the tab lookup failed
	Bundle types.Bundle
	Badge  badge.Badge
}

// Label is the tab URL, or its ID when the URL is unknown.
func (r Row) Label() string {
	if r.Tab.URL != "" {
		return r.Tab.URL
	}
	return fmt.Sprintf("tab %d", r.ID)
}

// ListModel is the scrollable list of tabs.
type ListModel struct {
	Rows   []Row
	Cursor int
	Offset int // scroll offset
	Width  int
	Height int
}

// SetRows replaces the rows and keeps the cursor on the same tab when it
// is still present.
func (m *ListModel) SetRows(rows []Row) {
	var current int
	if r := m.Selected(); r != nil {
		current = r.ID
	}
	m.Rows = rows
	for i, r := range rows {
		if r.ID == current {
			m.Cursor = i
			m.clamp()
			return
		}
	}
	m.clamp()
}

func (m *ListModel) clamp() {
	if m.Cursor >= len(m.Rows) {
		m.Cursor = len(m.Rows) - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if m.Offset > m.Cursor {
		m.Offset = m.Cursor
	}
}

// Selected returns the row under the cursor, or nil.
func (m ListModel) Selected() *Row {
	if m.Cursor >= 0 && m.Cursor < len(m.Rows) {
		return &m.Rows[m.Cursor]
	}
	return nil
}

// MoveUp moves the cursor up.
func (m *ListModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
}

// MoveDown moves the cursor down.
func (m *ListModel) MoveDown() {
	if m.Cursor < len(m.Rows)-1 {
		m.Cursor++
	}
	visibleRows := m.Height - 2 // account for padding
	if visibleRows < 1 {
		visibleRows = 1
	}
	if m.Cursor >= m.Offset+visibleRows {
		m.Offset = m.Cursor - visibleRows + 1
	}
}

// badgeCell renders a badge the way the toolbar icon shows it.
func badgeCell(b badge.Badge) string {
	text := b.Text
	if text == "" {
		text = " "
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(b.Color)).
		Foreground(lipgloss.Color(types.ColorText)).
		Bold(true).
		Width(4).
		Align(lipgloss.Center).
		Render(text)
}

// View renders the list.
func (m ListModel) View() string {
	if len(m.Rows) == 0 {
		return "No tabs with feeds yet."
	}

	visibleRows := m.Height
	if visibleRows < 1 {
		visibleRows = 20
	}

	var b strings.Builder
	end := m.Offset + visibleRows
	if end > len(m.Rows) {
		end = len(m.Rows)
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	for i := m.Offset; i < end; i++ {
		row := m.Rows[i]
		counts := countStyle.Render(fmt.Sprintf("%d/%d/%d",
			len(row.Bundle.PageFeeds), len(row.Bundle.PageHubFeeds), len(row.Bundle.SiteHubFeeds)))

		// Truncate URL to fit width
		maxURLLen := m.Width - lipgloss.Width(counts) - 8
		if maxURLLen < 10 {
			maxURLLen = 10
		}
		label := row.Label()
		if len(label) > maxURLLen {
			label = label[:maxURLLen-1] + "…"
		}
		text := " " + label + " "

		// Apply cursor highlight
		if i == m.Cursor {
			for lipgloss.Width(text) < maxURLLen+2 {
				text += " "
			}
			text = cursorStyle.Render(text)
		}

		b.WriteString(badgeCell(row.Badge) + text + counts)
		if i < end-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}
