// Package plan draws the floor plan as text for the terminal UI.
package plan

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"ble-locate.klederson.com/internal/bluetooth"
	"ble-locate.klederson.com/internal/config"
	"github.com/charmbracelet/lipgloss"
)

// MarkerKind selects the symbol and colour of a marker.
type MarkerKind int

const (
	MarkerScanner MarkerKind = iota
	MarkerRemoteScanner
	MarkerFixed
	MarkerLocated
)

// Symbol is the character drawn for the kind.
func (k MarkerKind) Symbol() byte {
	switch k {
	case MarkerScanner:
		return 'S'
	case MarkerRemoteScanner:
		return 'R'
	case MarkerFixed:
		return 'F'
	default:
		return '*'
	}
}

// Marker is one thing placed on the plan.
type Marker struct {
	ID       string
	Label    string
	Pos      bluetooth.Point
	Kind     MarkerKind
	Selected bool
}

var (
	colorBright   = lipgloss.Color("#00FF41")
	colorMid      = lipgloss.Color("#008F11")
	colorDim      = lipgloss.Color("#004A0A")
	colorScanner  = lipgloss.Color("#3399FF")
	colorRemote   = lipgloss.Color("#66CCFF")
	colorFixed    = lipgloss.Color("#FF5544")
	colorLocated  = lipgloss.Color("#00FFAA")
	colorLabelDim = lipgloss.Color("#008F11")

	styleWall     = lipgloss.NewStyle().Foreground(colorMid)
	styleGrid     = lipgloss.NewStyle().Foreground(colorDim)
	styleSelected = lipgloss.NewStyle().Foreground(colorBright).Bold(true).Reverse(true)
	styleLabelDim = lipgloss.NewStyle().Foreground(colorLabelDim)

	kindStyles = map[MarkerKind]lipgloss.Style{
		MarkerScanner:       lipgloss.NewStyle().Foreground(colorScanner).Bold(true),
		MarkerRemoteScanner: lipgloss.NewStyle().Foreground(colorRemote).Bold(true),
		MarkerFixed:         lipgloss.NewStyle().Foreground(colorFixed).Bold(true),
		MarkerLocated:       lipgloss.NewStyle().Foreground(colorLocated).Bold(true),
	}
)

type placed struct {
	col, row int
	m        Marker
	label    string
	labelCol int
	labelRow int
}

// Render produces the plan as a styled string of exactly height lines.
// Markers outside bounds are not drawn.
func Render(width, height int, markers []Marker, b Bounds, pulse *Pulse) string {
	if width < 10 || height < 5 {
		return ""
	}
	v := NewViewport(b, width, height)
	step := GridStep(b.Width())

	ps := placeMarkers(sortMarkers(markers), v)

	type labelCell struct {
		idx     int
		charIdx int
	}
	labelMap := make(map[int]labelCell)
	markerMap := make(map[int]int)
	for i, p := range ps {
		markerMap[p.row*width+p.col] = i
		for ci := 0; ci < len(p.label); ci++ {
			labelMap[p.labelRow*width+p.labelCol+ci] = labelCell{idx: i, charIdx: ci}
		}
	}

	var sb strings.Builder
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			key := row*width + col
			if i, ok := markerMap[key]; ok {
				sb.WriteString(renderMarker(ps[i].m, pulse))
				continue
			}
			if lc, ok := labelMap[key]; ok {
				p := ps[lc.idx]
				sb.WriteString(styleLabel(p.m).Render(string(p.label[lc.charIdx])))
				continue
			}
			sb.WriteString(renderCell(v, col, row, step))
		}
		if row < height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// sortMarkers orders markers so scanners claim label space first.
func sortMarkers(markers []Marker) []Marker {
	out := append([]Marker(nil), markers...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// placeMarkers maps markers to cells, then places labels, dropping any
// label that would overlap a marker or a label already placed. When two
// markers share a cell the first one wins.
func placeMarkers(markers []Marker, v Viewport) []placed {
	ps := make([]placed, 0, len(markers))

	type segment struct{ start, end int }
	occupied := make(map[int][]segment)
	collides := func(row, start, end int) bool {
		for _, seg := range occupied[row] {
			if start < seg.end && end > seg.start {
				return true
			}
		}
		return false
	}

	for _, m := range markers {
		dc, dr, ok := v.Cell(m.Pos)
		if !ok || collides(dr, dc, dc+1) {
			continue
		}
		occupied[dr] = append(occupied[dr], segment{dc, dc + 1})
		ps = append(ps, placed{col: dc, row: dr, m: m})
	}

	for i := range ps {
		p := &ps[i]
		label := callsign(p.m)
		lc := p.col + 2
		if lc+len(label) >= v.Cols {
			lc = p.col - len(label) - 1
		}
		if lc < 0 {
			lc = 0
		}

		for _, r := range []int{p.row, p.row + 1, p.row - 1} {
			if r >= 0 && r < v.Rows && !collides(r, lc, lc+len(label)) {
				p.label, p.labelCol, p.labelRow = label, lc, r
				occupied[r] = append(occupied[r], segment{lc, lc + len(label)})
				break
			}
		}
	}
	return ps
}

func callsign(m Marker) string {
	if m.Label != "" {
		name := m.Label
		if len(name) > config.MaxLabelLen {
			name = name[:config.MaxLabelLen]
		}
		return name
	}
	h := sha256.Sum256([]byte(m.ID))
	return fmt.Sprintf("#%02X%X", h[0], h[1]&0x0F)
}

func styleLabel(m Marker) lipgloss.Style {
	if m.Label == "" {
		return styleLabelDim
	}
	return lipgloss.NewStyle().Foreground(kindStyles[m.Kind].GetForeground())
}

func renderMarker(m Marker, pulse *Pulse) string {
	s := string(m.Kind.Symbol())
	if m.Selected && pulse.Intensity() > 0.5 {
		return styleSelected.Render(s)
	}
	return kindStyles[m.Kind].Render(s)
}

func renderCell(v Viewport, col, row int, step float64) string {
	if !v.Inside(col, row) {
		return " "
	}
	left, right := !v.Inside(col-1, row), !v.Inside(col+1, row)
	top, bottom := !v.Inside(col, row-1), !v.Inside(col, row+1)
	switch {
	case (left || right) && (top || bottom):
		return styleWall.Render("+")
	case top || bottom:
		return styleWall.Render("-")
	case left || right:
		return styleWall.Render("|")
	}

	p := v.Point(col, row)
	half := v.UnitsPerColumn() / 2
	onX := crossesLine(p.X, half, step)
	onY := crossesLine(p.Y, half/config.PlanAspectRatio, step)
	if onX && onY {
		return styleGrid.Render(".")
	}
	return " "
}

// RenderLegend produces the plan legend line.
func RenderLegend(width int, step float64) string {
	legend := kindStyles[MarkerScanner].Render("S scanner") + "  " +
		kindStyles[MarkerRemoteScanner].Render("R remote") + "  " +
		kindStyles[MarkerFixed].Render("F fixed") + "  " +
		kindStyles[MarkerLocated].Render("* located") + "  " +
		styleGrid.Render(fmt.Sprintf(". every %g", step))

	pad := (width - lipgloss.Width(legend)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + legend
}
