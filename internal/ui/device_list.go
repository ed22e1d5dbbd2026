package ui

import (
	"fmt"
	"math"
	"strings"

	"ble-locate.klederson.com/internal/bluetooth"
	"github.com/charmbracelet/lipgloss"
)

// FilterState holds the current filter settings for the device list.
type FilterState struct {
	HideScanners bool   // hide devices that act as scanners
	Search       string // text search on name/address
	Active       bool   // text input mode
}

// Match reports whether s passes the filter.
func (f FilterState) Match(s bluetooth.DeviceSnapshot) bool {
	if f.HideScanners && s.IsScanner {
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(s.Name), q) ||
		strings.Contains(strings.ToLower(s.Address), q)
}

// Filter returns the snapshots that pass f, keeping their order.
func Filter(devices []bluetooth.DeviceSnapshot, f FilterState) []bluetooth.DeviceSnapshot {
	out := make([]bluetooth.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

// Cursor row style: black text on bright green
var cursorRowSty = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#000000")).
	Background(ColorMatrixGreen).
	Bold(true)

const linesPerDevice = 4 // 3 content + 1 blank

// RenderDeviceList renders the scrollable device list with a cursor. The
// title and filter bar stay fixed; only the entries scroll.
func RenderDeviceList(devices []bluetooth.DeviceSnapshot, width, height int, cursorIndex int, filter FilterState) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	headerLines := []string{
		StylePanelTitle.Render(fmt.Sprintf("DEVICES [%d]", len(devices))),
		StyleSeparator.Render(strings.Repeat("-", innerW)),
		renderFilterBar(filter),
	}

	innerH := height - 2
	if innerH < len(headerLines)+1 {
		innerH = len(headerLines) + 1
	}
	devSpace := innerH - len(headerLines)

	var devLines []string
	if len(devices) == 0 {
		devLines = append(devLines, "", StyleHelp.Render(" No devices..."), StyleHelp.Render(" Waiting for adverts"))
	} else {
		maxVisible := devSpace / linesPerDevice
		if maxVisible < 1 {
			maxVisible = 1
		}
		viewStart := 0
		if cursorIndex >= maxVisible {
			viewStart = cursorIndex - maxVisible + 1
		}
		for i := viewStart; i < len(devices) && len(devLines) < devSpace; i++ {
			devLines = append(devLines, renderDeviceEntry(devices[i], innerW, i == cursorIndex)...)
		}
	}

	if len(devLines) > devSpace {
		devLines = devLines[:devSpace]
	}
	for len(devLines) < devSpace {
		devLines = append(devLines, "")
	}

	all := append(headerLines, devLines...)
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(strings.Join(all, "\n"))

	// lipgloss Height() only sets a minimum, so clamp to exactly height lines.
	outLines := strings.Split(rendered, "\n")
	if len(outLines) > height {
		outLines = outLines[:height]
	}
	for len(outLines) < height {
		outLines = append(outLines, "")
	}
	return strings.Join(outLines, "\n")
}

// deviceTag returns the list tag and its style.
func deviceTag(s bluetooth.DeviceSnapshot) (string, lipgloss.Style) {
	switch {
	case s.IsRemoteScanner:
		return "[RMT]", StyleTagRemote
	case s.IsScanner:
		return "[SCN]", StyleTagScanner
	case s.Position != nil:
		return "[LOC]", StyleTagLocated
	default:
		return "[BLE]", StyleDeviceRSSI
	}
}

func formatRSSI(rssi float64) string {
	if math.IsInf(rssi, 0) || math.IsNaN(rssi) {
		return "--dBm"
	}
	return fmt.Sprintf("%ddBm", int(rssi))
}

func renderDeviceEntry(s bluetooth.DeviceSnapshot, maxW int, isCursor bool) []string {
	tag, tagSty := deviceTag(s)

	name := s.DisplayName()
	if nameMax := maxW - 12; len(name) > nameMax && nameMax >= 4 {
		name = name[:nameMax]
	}

	signal := formatRSSI(s.RSSI)
	if s.NearestScanner != "" {
		signal += fmt.Sprintf(" ~%.1fm @%s", s.Distance, s.NearestScanner)
	}
	where := ""
	if s.Position != nil {
		where = fmt.Sprintf("(%.0f, %.0f)", s.Position.X, s.Position.Y)
	}

	if isCursor {
		return []string{
			cursorRowSty.Render(truncRaw(fmt.Sprintf(">> %s %s", name, tag), maxW)),
			cursorRowSty.Render(truncRaw("   "+s.Address, maxW)),
			cursorRowSty.Render(truncRaw("   "+signal+" "+where, maxW)),
			"",
		}
	}

	return []string{
		fmt.Sprintf("   %s %s", StyleDeviceName.Render(name), tagSty.Render(tag)),
		"   " + StyleDeviceAddr.Render(truncRaw(s.Address, maxW-3)),
		"   " + StyleDeviceRSSI.Render(truncRaw(signal+" "+where, maxW-3)),
		"",
	}
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if w < 0 {
		w = 0
	}
	if len(s) > w {
		return s[:w]
	}
	return s + strings.Repeat(" ", w-len(s))
}

func renderFilterBar(f FilterState) string {
	scn := StyleFilterActive.Render("[H:scanners]")
	if f.HideScanners {
		scn = StyleFilterInactive.Render("[H:scanners]")
	}
	bar := " " + scn

	if f.Active {
		bar += "  " + StyleFilterActive.Render("/"+f.Search+"_")
	} else if f.Search != "" {
		bar += "  " + StyleFilterInactive.Render("/"+f.Search)
	}
	return bar
}
