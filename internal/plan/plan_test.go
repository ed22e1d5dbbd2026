package plan

import (
	"strings"
	"testing"
	"time"

	"ble-locate.klederson.com/internal/bluetooth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundsOf(t *testing.T) {
	assert.Equal(t, Bounds{0, 0, 1, 1}, BoundsOf())

	b := BoundsOf(bluetooth.Point{X: 0, Y: 0}, bluetooth.Point{X: 100, Y: 200})
	assert.InDelta(t, -5, b.MinX, 1e-9)
	assert.InDelta(t, -10, b.MinY, 1e-9)
	assert.InDelta(t, 105, b.MaxX, 1e-9)
	assert.InDelta(t, 210, b.MaxY, 1e-9)

	single := BoundsOf(bluetooth.Point{X: 3, Y: 4})
	assert.InDelta(t, 1, single.Width(), 1e-9)
	assert.InDelta(t, 1, single.Height(), 1e-9)
}

func TestViewportMapsCorners(t *testing.T) {
	v := NewViewport(Bounds{0, 0, 10, 10}, 21, 11)

	col, row, ok := v.Cell(bluetooth.Point{X: 0, Y: 0})
	assert.True(t, ok)
	assert.Equal(t, 0, col)
	assert.Equal(t, 0, row)

	col, row, ok = v.Cell(bluetooth.Point{X: 10, Y: 10})
	assert.True(t, ok)
	assert.Equal(t, 20, col)
	assert.Equal(t, 10, row)

	col, row, _ = v.Cell(bluetooth.Point{X: 5, Y: 5})
	assert.Equal(t, 10, col)
	assert.Equal(t, 5, row)

	p := v.Point(10, 5)
	assert.InDelta(t, 5, p.X, 1e-9)
	assert.InDelta(t, 5, p.Y, 1e-9)

	_, _, ok = v.Cell(bluetooth.Point{X: -5, Y: 0})
	assert.False(t, ok)
	assert.InDelta(t, 0.5, v.UnitsPerColumn(), 1e-9)
}

func TestViewportCentresNarrowPlan(t *testing.T) {
	v := NewViewport(Bounds{0, 0, 10, 10}, 41, 11)

	col, row, ok := v.Cell(bluetooth.Point{X: 0, Y: 0})
	require.True(t, ok)
	assert.Equal(t, 10, col)
	assert.Equal(t, 0, row)

	col, _, _ = v.Cell(bluetooth.Point{X: 10, Y: 10})
	assert.Equal(t, 30, col)

	assert.True(t, v.Inside(20, 5))
	assert.False(t, v.Inside(2, 5))
}

func TestGridStep(t *testing.T) {
	tests := []struct {
		span float64
		want float64
	}{
		{720, 100},
		{10, 2},
		{40, 10},
		{0.3, 0.05},
		{0, 1},
		{-4, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, GridStep(tt.span), 1e-9, "span %v", tt.span)
	}
}

func TestPulseIntensity(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := NewPulse(start)

	p.Update(start)
	assert.InDelta(t, 1, p.Intensity(), 1e-9)

	p.Update(start.Add(p.Period / 2))
	assert.InDelta(t, 0, p.Intensity(), 1e-9)

	p.Update(start.Add(p.Period + p.Period/4))
	assert.InDelta(t, 0.5, p.Intensity(), 1e-9)

	p.Period = 0
	p.Update(start.Add(time.Second))
	assert.Equal(t, 0.0, p.Phase)

	var nilPulse *Pulse
	assert.Equal(t, 0.0, nilPulse.Intensity())
}

func TestCallsign(t *testing.T) {
	assert.Equal(t, "Living Roo", callsign(Marker{ID: "x", Label: "Living Room Speaker"}))
	assert.Equal(t, "Keys", callsign(Marker{ID: "x", Label: "Keys"}))

	c := callsign(Marker{ID: "aa:bb:cc:dd:ee:ff"})
	assert.True(t, strings.HasPrefix(c, "#"))
	assert.Len(t, c, 4)
	assert.Equal(t, c, callsign(Marker{ID: "aa:bb:cc:dd:ee:ff"}))
}

func TestPlaceMarkersSharedCell(t *testing.T) {
	v := NewViewport(Bounds{0, 0, 10, 10}, 21, 11)
	ps := placeMarkers(sortMarkers([]Marker{
		{ID: "b", Pos: bluetooth.Point{X: 5, Y: 5}, Kind: MarkerLocated},
		{ID: "a", Pos: bluetooth.Point{X: 5, Y: 5}, Kind: MarkerScanner},
	}), v)

	require.Len(t, ps, 1)
	assert.Equal(t, "a", ps[0].m.ID)
}

func TestPlaceMarkersDropsBlockedLabel(t *testing.T) {
	v := NewViewport(Bounds{0, 0, 10, 10}, 21, 11)
	markers := []Marker{
		{ID: "a", Label: "LONGLABEL", Pos: bluetooth.Point{X: 0, Y: 5}, Kind: MarkerScanner},
		{ID: "b1", Pos: bluetooth.Point{X: 2, Y: 4}, Kind: MarkerLocated},
		{ID: "b2", Pos: bluetooth.Point{X: 2, Y: 5}, Kind: MarkerLocated},
		{ID: "b3", Pos: bluetooth.Point{X: 2, Y: 6}, Kind: MarkerLocated},
	}
	ps := placeMarkers(sortMarkers(markers), v)

	require.Len(t, ps, 4, "markers are never dropped for labels")
	assert.Equal(t, "a", ps[0].m.ID)
	assert.Empty(t, ps[0].label)

	for _, p := range ps[1:] {
		assert.NotEmpty(t, p.label, p.m.ID)
	}
}

func TestRender(t *testing.T) {
	assert.Empty(t, Render(5, 20, nil, Bounds{0, 0, 1, 1}, nil))
	assert.Empty(t, Render(40, 3, nil, Bounds{0, 0, 1, 1}, nil))

	markers := []Marker{
		{ID: "s1", Pos: bluetooth.Point{X: 40, Y: 40}, Kind: MarkerScanner},
		{ID: "s2", Pos: bluetooth.Point{X: 760, Y: 40}, Kind: MarkerRemoteScanner},
		{ID: "tag", Pos: bluetooth.Point{X: 100, Y: 500}, Kind: MarkerFixed},
		{ID: "aa:bb", Label: "Kitchen", Pos: bluetooth.Point{X: 400, Y: 300}, Kind: MarkerLocated, Selected: true},
	}
	b := BoundsOf(markers[0].Pos, markers[1].Pos, markers[2].Pos)
	pulse := NewPulse(time.Now())

	out := Render(80, 20, markers, b, pulse)
	assert.Equal(t, 19, strings.Count(out, "\n"))
	for _, want := range []string{"S", "R", "F", "*", "Kitchen"} {
		assert.Contains(t, out, want)
	}

	// Selected marker with no pulse still draws.
	assert.Contains(t, Render(80, 20, markers, b, nil), "*")
}

func TestRenderLegend(t *testing.T) {
	legend := RenderLegend(100, 100)
	assert.Contains(t, legend, "scanner")
	assert.Contains(t, legend, "located")
	assert.Contains(t, legend, "every 100")
	assert.True(t, strings.HasPrefix(legend, " "))
}
