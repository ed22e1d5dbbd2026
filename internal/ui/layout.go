package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ComposeLayout joins the plan panel and device list side by side, between
// the menu bar and the status bar.
func ComposeLayout(menuBar, planPanel, deviceList, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, planPanel, deviceList)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}

// RenderPlanPanel wraps plan content with a border and a legend line.
func RenderPlanPanel(width, height int, title, content, legend string) string {
	body := StylePanelTitle.Render(title) + "\n" + content + "\n" + legend
	return StylePanelBorder.Width(width - 2).Height(height - 2).Render(body)
}

func padRight(s string, width int) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	return s + strings.Repeat(" ", gap)
}
