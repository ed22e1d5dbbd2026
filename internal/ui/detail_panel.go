package ui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ble-locate.klederson.com/internal/bluetooth"
	"github.com/charmbracelet/lipgloss"
)

// RenderDetailPanel renders the device detail view that replaces the plan.
func RenderDetailPanel(d bluetooth.DeviceSnapshot, width, height int, now time.Time) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}

	title := StylePanelTitle.Render("DEVICE DETAIL")
	escHint := StyleHelp.Render("[ESC]")
	titleLine := padRight(title, innerW-lipgloss.Width(escHint)) + escHint
	sep := StyleSeparator.Render(strings.Repeat("-", innerW))

	lines := []string{titleLine, sep, ""}

	labelSty := lipgloss.NewStyle().Foreground(ColorMidGreen)
	valSty := lipgloss.NewStyle().Foreground(ColorMatrixGreen).Bold(true)

	for _, f := range detailFields(d, now) {
		lines = append(lines, labelSty.Render(fmt.Sprintf("  %-13s", f[0]))+valSty.Render(f[1]))
	}
	lines = append(lines, "")

	if !math.IsInf(d.RSSI, -1) {
		barWidth := innerW - 22
		if barWidth < 10 {
			barWidth = 10
		}
		lines = append(lines, labelSty.Render("  Signal ")+renderSignalBar(d.RSSI, barWidth)+valSty.Render(" "+formatRSSI(d.RSSI)), "")
	}

	if history := advertRSSI(d.Adverts); len(history) > 0 {
		lines = append(lines,
			labelSty.Render("  RSSI History:"),
			"  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(renderSparkline(history, innerW-4)),
			"")
	}

	lines = append(lines, labelSty.Render("  Scanners:"))
	lines = append(lines, renderLinkTable(d, innerW)...)

	for len(lines) < height-2 {
		lines = append(lines, "")
	}
	if len(lines) > height-2 && height > 2 {
		lines = lines[:height-2]
	}
	return StylePanelActive.Width(width - 2).Height(height - 2).Render(strings.Join(lines, "\n"))
}

func detailFields(d bluetooth.DeviceSnapshot, now time.Time) [][2]string {
	fields := [][2]string{
		{"Name", d.DisplayName()},
		{"Address", d.Address},
	}
	if d.NameByUser != "" {
		fields = append(fields, [2]string{"User name", d.NameByUser})
	}
	if d.LocalName != "" && d.LocalName != d.Name {
		fields = append(fields, [2]string{"Local name", d.LocalName})
	}
	if d.Manufacturer != "" {
		fields = append(fields, [2]string{"Manufacturer", d.Manufacturer})
	}

	role := "device"
	switch {
	case d.IsRemoteScanner:
		role = "remote scanner"
	case d.IsScanner:
		role = "local scanner"
	}
	fields = append(fields, [2]string{"Role", role}, [2]string{"Zone", d.Zone})
	if d.AreaName != "" || d.FloorName != "" {
		fields = append(fields, [2]string{"Area", strings.Trim(d.AreaName+" / "+d.FloorName, " /")})
	}

	pos := "unknown"
	if d.Position != nil {
		pos = fmt.Sprintf("(%.1f, %.1f)", d.Position.X, d.Position.Y)
	}
	fields = append(fields, [2]string{"Position", pos}, [2]string{"Last", formatLastSeen(d.LastSeen, now)})
	return fields
}

// renderLinkTable lists the per-scanner readings, strongest first.
func renderLinkTable(d bluetooth.DeviceSnapshot, width int) []string {
	if len(d.ScannerRSSI) == 0 {
		return []string{StyleHelp.Render("    none")}
	}
	ids := make([]string, 0, len(d.ScannerRSSI))
	for id := range d.ScannerRSSI {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if d.ScannerRSSI[ids[i]] != d.ScannerRSSI[ids[j]] {
			return d.ScannerRSSI[ids[i]] > d.ScannerRSSI[ids[j]]
		}
		return ids[i] < ids[j]
	})

	out := []string{StyleHelp.Render(truncRaw(fmt.Sprintf("    %-18s %7s %7s %7s %6s", "scanner", "rssi", "dist", "raw", "age"), width))}
	for _, id := range ids {
		row := fmt.Sprintf("    %-18s %7s %6.1fm %6.1fm %5.0fs",
			truncRaw(id, 18), formatRSSI(d.ScannerRSSI[id]),
			d.ScannerDistance[id], d.ScannerDistanceRaw[id], d.ScannerLastUpdate[id])
		out = append(out, StyleDeviceRSSI.Render(truncRaw(row, width)))
	}
	return out
}

func advertRSSI(adverts []bluetooth.AdvertSummary) []float64 {
	out := make([]float64, len(adverts))
	for i, a := range adverts {
		out[i] = float64(a.RSSI)
	}
	return out
}

func renderSignalBar(rssi float64, width int) string {
	// Map RSSI -100..-30 to 0..width filled bars
	ratio := math.Max(0, math.Min(1, (rssi+100.0)/70.0))
	filled := int(math.Round(ratio * float64(width)))

	filledPart := lipgloss.NewStyle().Foreground(signalColor(rssi)).Render(strings.Repeat("|", filled))
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(strings.Repeat("-", width-filled))
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func signalColor(rssi float64) lipgloss.Color {
	switch {
	case rssi > -60:
		return ColorMatrixGreen
	case rssi > -80:
		return ColorGreen
	default:
		return ColorMidGreen
	}
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}
	if width < 1 {
		width = 1
	}
	chars := []byte{'_', '.', '-', '~', '^'}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV, maxV = math.Min(minV, v), math.Max(maxV, v)
	}
	rng := maxV - minV
	if rng < 1 {
		rng = 1
	}

	start := 0
	if len(values) > width {
		start = len(values) - width
	}

	var sb strings.Builder
	for _, v := range values[start:] {
		idx := int((v - minV) / rng * float64(len(chars)-1))
		sb.WriteByte(chars[max(0, min(idx, len(chars)-1))])
	}
	return sb.String()
}

func formatLastSeen(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
}
