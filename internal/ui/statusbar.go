package ui

import (
	"fmt"
	"strings"
)

// Counts summarises the registry for the status bar.
type Counts struct {
	Total    int
	Scanners int
	Remote   int
	Located  int
}

// RenderStatusBar renders the bottom status bar. errMsg, when set, replaces
// the counters.
func RenderStatusBar(width int, scanning bool, c Counts, unitsPerMeter float64, errMsg string) string {
	status := StyleStatusPaused.Render("[PAUSED]")
	if scanning {
		status = StyleStatusScanning.Render("[SCANNING]")
	}

	var info string
	if errMsg != "" {
		info = " " + StyleError.Render(strings.TrimSpace(errMsg))
	} else {
		info = StyleStatusBar.Render(fmt.Sprintf(" Devices: %d  Scanners: %d (%d remote)  Located: %d  Scale: %g/m",
			c.Total, c.Scanners, c.Remote, c.Located, unitsPerMeter))
	}

	return StyleStatusBar.Width(width).Render(padRight(status+info, width-2))
}
