package ui

import (
	"fmt"

	"ble-locate.klederson.com/internal/config"
	"github.com/charmbracelet/lipgloss"
)

// RenderMenuBar renders the top menu bar. source is the adapter name, or
// empty in demo mode.
func RenderMenuBar(width int, source string, scanning, triangulation bool) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"S", "can"},
		{"P", "ause"},
		{"T", "riangulate"},
		{"/", "search"},
		{"Q", "uit"},
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	status := StyleStatusPaused.Render("PAUSED")
	if scanning {
		status = StyleStatusScanning.Render("SCANNING")
	}
	tri := StyleFilterInactive.Render("TRI:OFF")
	if triangulation {
		tri = StyleFilterActive.Render("TRI:ON")
	}

	info := StyleMenuLabel.Render("Adapter: " + source)
	if source == "" {
		info = StyleStatusPaused.Render("DEMO")
	}

	left := StyleMenuKey.Render(title) + menu
	right := status + "  " + tri + "  " + info + " "

	return StyleMenuBar.Width(width).Render(padRight(left, width-lipgloss.Width(right)-2) + right)
}
