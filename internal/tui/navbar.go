package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// ListWidthPct is the percentage of terminal width used for the tab list.
const ListWidthPct = 55

func renderTopBar(connected bool, port, tabs, feeds int, status string, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	statsStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	connStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	conn := fmt.Sprintf("○ waiting on :%d", port)
	if connected {
		conn = "● connected"
	}

	left := " " + titleStyle.Render("tabfeeds") + "   " + statsStyle.Render(fmt.Sprintf("%d tabs · %d feeds", tabs, feeds))
	if status != "" {
		left += "   " + statsStyle.Render(status)
	}

	right := connStyle.Render(conn)
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + right + " "
}
