package app

import (
	"fmt"

	"ble-locate.klederson.com/internal/bluetooth"
	"ble-locate.klederson.com/internal/plan"
	"ble-locate.klederson.com/internal/ui"
)

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing BLE Locate..."
	}

	bodyH := m.height - 2 // menu bar + status bar
	if bodyH < 5 {
		bodyH = 5
	}

	planW := m.width * 2 / 3
	if planW < 30 {
		planW = 30
	}
	listW := m.width - planW
	if listW < 20 {
		listW = 20
		planW = m.width - listW
	}

	source := m.adapter
	if m.demoMode {
		source = ""
	}
	menuBar := ui.RenderMenuBar(m.width, source, m.scanning, m.triangulation)

	var left string
	if d, ok := m.selectedDevice(); m.detail && ok {
		left = ui.RenderDetailPanel(d, planW, bodyH, m.shared.clock.Now())
	} else {
		left = m.renderPlan(planW, bodyH)
	}

	deviceList := ui.RenderDeviceList(m.visible(), listW, bodyH, m.cursor, m.filter)
	statusBar := ui.RenderStatusBar(m.width, m.scanning, m.counts(), m.shared.unitsPerMeter, m.errMsg)

	return ui.ComposeLayout(menuBar, left, deviceList, statusBar)
}

func (m AppModel) renderPlan(width, height int) string {
	innerW := width - 4
	innerH := height - 4 // border, title and legend
	if innerW < 10 {
		innerW = 10
	}
	if innerH < 5 {
		innerH = 5
	}

	markers := m.markers()
	b := m.planBounds()
	content := plan.Render(innerW, innerH, markers, b, m.shared.pulse)
	legend := plan.RenderLegend(innerW, plan.GridStep(b.Width()))

	title := "FLOOR PLAN"
	if !m.triangulation {
		title += " (triangulation off)"
	}
	return ui.RenderPlanPanel(width, height, title, content, legend)
}

// markers lists everything drawn on the plan: scanners, configured devices
// and, with triangulation on, located devices.
func (m AppModel) markers() []plan.Marker {
	s := m.shared
	var out []plan.Marker
	add := func(addr string, p bluetooth.Point, kind plan.MarkerKind) {
		label := ""
		if d, ok := s.registry.Lookup(addr); ok {
			label = d.Name()
		}
		out = append(out, plan.Marker{
			ID:       addr,
			Label:    label,
			Pos:      p,
			Kind:     kind,
			Selected: m.detail && addr == m.selected,
		})
	}

	for addr, p := range s.coords {
		kind := plan.MarkerScanner
		if d, ok := s.registry.Lookup(addr); ok && d.IsRemoteScanner() {
			kind = plan.MarkerRemoteScanner
		}
		add(addr, p, kind)
	}
	for addr, p := range s.static {
		add(addr, p, plan.MarkerFixed)
	}
	if m.triangulation {
		for addr, p := range m.positions {
			add(addr, p, plan.MarkerLocated)
		}
	}
	return out
}

// planBounds frames the fixed points; located devices outside them are not
// drawn.
func (m AppModel) planBounds() plan.Bounds {
	var pts []bluetooth.Point
	for _, p := range m.shared.coords {
		pts = append(pts, p)
	}
	for _, p := range m.shared.static {
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		for _, p := range m.positions {
			pts = append(pts, p)
		}
	}
	return plan.BoundsOf(pts...)
}

func (m AppModel) counts() ui.Counts {
	scanners, remote := m.shared.registry.CountScanners()
	return ui.Counts{
		Total:    m.shared.registry.Count(),
		Scanners: scanners,
		Remote:   remote,
		Located:  len(m.positions),
	}
}

// String summarises the model state for logs.
func (m AppModel) String() string {
	c := m.counts()
	return fmt.Sprintf("devices=%d scanners=%d located=%d triangulation=%t", c.Total, c.Scanners, c.Located, m.triangulation)
}
