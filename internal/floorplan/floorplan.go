// Package floorplan renders scanner and device positions onto a floor-plan
// image.
package floorplan

import (
	"image"
	"image/color"
	_ "image/jpeg" // background decoders
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"ble-locate.klederson.com/internal/bluetooth"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	scannerColor = color.RGBA{R: 0, G: 0, B: 255, A: 192}
	staticColor  = color.RGBA{R: 255, G: 0, B: 0, A: 192}
	locatedColor = color.RGBA{R: 0, G: 255, B: 0, A: 192}
)

const (
	defaultWidth  = 8 * vg.Inch
	defaultHeight = 6 * vg.Inch
	margin        = 0.1
)

// Scene is what gets drawn. Coordinates use the floor-plan convention of the
// background image: x to the right, y down.
type Scene struct {
	Scanners map[string]bluetooth.Point
	Static   map[string]bluetooth.Point // configured device coordinates
	Located  map[string]bluetooth.Point // trilaterated positions
	Names    map[string]string          // optional labels for located devices

	// ShowLocated gates the trilaterated markers; it follows the
	// enable_triangulation option.
	ShowLocated bool
}

// Renderer draws scenes, optionally over a background image.
type Renderer struct {
	background image.Image
	Width      vg.Length
	Height     vg.Length
}

// NewRenderer creates a renderer. An empty backgroundPath draws on a blank
// canvas sized to the coordinates.
func NewRenderer(backgroundPath string) (*Renderer, error) {
	r := &Renderer{Width: defaultWidth, Height: defaultHeight}
	if backgroundPath == "" {
		return r, nil
	}

	f, err := os.Open(filepath.Clean(backgroundPath))
	if err != nil {
		return nil, errors.Wrap(err, "open floor plan image")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode floor plan image %s", backgroundPath)
	}
	r.background = img

	// Keep the background's aspect ratio.
	b := img.Bounds()
	if b.Dx() > 0 {
		r.Height = r.Width * vg.Length(float64(b.Dy())/float64(b.Dx()))
	}
	return r, nil
}

// HasBackground reports whether a background image was loaded.
func (r *Renderer) HasBackground() bool {
	return r.background != nil
}

type layer struct {
	name  string
	xys   plotter.XYs
	ids   []string
	color color.Color
	shape draw.GlyphDrawer
	size  vg.Length
}

// extent is the data window, in floor-plan coordinates.
type extent struct {
	minX, minY, maxX, maxY float64
}

// flipY mirrors y inside the window; floor plans grow downwards, plots
// upwards.
func (e extent) flipY(y float64) float64 {
	return e.minY + e.maxY - y
}

func (r *Renderer) extent(s Scene) extent {
	if r.background != nil {
		b := r.background.Bounds()
		return extent{0, 0, float64(b.Dx()), float64(b.Dy())}
	}

	e := extent{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	grow := func(pts map[string]bluetooth.Point) {
		for _, p := range pts {
			e.minX, e.maxX = math.Min(e.minX, p.X), math.Max(e.maxX, p.X)
			e.minY, e.maxY = math.Min(e.minY, p.Y), math.Max(e.maxY, p.Y)
		}
	}
	grow(s.Scanners)
	grow(s.Static)
	if s.ShowLocated {
		grow(s.Located)
	}
	if math.IsInf(e.minX, 1) {
		return extent{0, 0, 1, 1}
	}

	padX := math.Max((e.maxX-e.minX)*margin, 1)
	padY := math.Max((e.maxY-e.minY)*margin, 1)
	return extent{e.minX - padX, e.minY - padY, e.maxX + padX, e.maxY + padY}
}

func (e extent) points(pts map[string]bluetooth.Point) (plotter.XYs, []string) {
	ids := make([]string, 0, len(pts))
	for id := range pts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	xys := make(plotter.XYs, len(ids))
	for i, id := range ids {
		p := pts[id]
		xys[i] = plotter.XY{X: p.X, Y: e.flipY(p.Y)}
	}
	return xys, ids
}

func (r *Renderer) layers(s Scene, e extent) []layer {
	var out []layer
	if xys, ids := e.points(s.Scanners); len(xys) > 0 {
		out = append(out, layer{"scanners", xys, ids, scannerColor, draw.CircleGlyph{}, vg.Points(4)})
	}
	if xys, ids := e.points(s.Static); len(xys) > 0 {
		out = append(out, layer{"fixed devices", xys, ids, staticColor, draw.BoxGlyph{}, vg.Points(3)})
	}
	if s.ShowLocated {
		if xys, ids := e.points(s.Located); len(xys) > 0 {
			out = append(out, layer{"located devices", xys, ids, locatedColor, draw.BoxGlyph{}, vg.Points(2)})
		}
	}
	return out
}

// Plot builds the plot for s.
func (r *Renderer) Plot(s Scene) (*plot.Plot, error) {
	e := r.extent(s)

	p := plot.New()
	p.Title.Text = "Floor plan"
	p.X.Min, p.X.Max = e.minX, e.maxX
	p.Y.Min, p.Y.Max = e.minY, e.maxY
	p.Y.Tick.Marker = flippedTicks{e}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if r.background != nil {
		p.Add(plotter.NewImage(r.background, e.minX, e.minY, e.maxX, e.maxY))
	}

	for _, l := range r.layers(s, e) {
		sc, err := plotter.NewScatter(l.xys)
		if err != nil {
			return nil, errors.Wrapf(err, "%s markers", l.name)
		}
		sc.GlyphStyle.Color = l.color
		sc.GlyphStyle.Shape = l.shape
		sc.GlyphStyle.Radius = l.size
		p.Add(sc)
		p.Legend.Add(l.name, sc)

		if l.name == "located devices" && len(s.Names) > 0 {
			labels, err := r.labels(l, s.Names)
			if err != nil {
				return nil, err
			}
			p.Add(labels)
		}
	}
	return p, nil
}

func (r *Renderer) labels(l layer, names map[string]string) (*plotter.Labels, error) {
	text := make([]string, len(l.ids))
	for i, id := range l.ids {
		text[i] = names[id]
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: l.xys, Labels: text})
	if err != nil {
		return nil, errors.Wrap(err, "device labels")
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].Color = color.Black
		labels.TextStyle[i].XAlign = draw.XCenter
	}
	labels.Offset = vg.Point{Y: vg.Points(4)}
	return labels, nil
}

// Render writes s as PNG to w.
func (r *Renderer) Render(w io.Writer, s Scene) error {
	p, err := r.Plot(s)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(r.Width, r.Height, "png")
	if err != nil {
		return errors.Wrap(err, "create PNG writer")
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "write PNG")
	}
	return nil
}

// Save renders s to a PNG file at path.
func (r *Renderer) Save(path string, s Scene) error {
	p, err := r.Plot(s)
	if err != nil {
		return err
	}
	if err := p.Save(r.Width, r.Height, filepath.Clean(path)); err != nil {
		return errors.Wrapf(err, "save floor plan %s", path)
	}
	return nil
}

// flippedTicks labels the y axis with floor-plan coordinates while the plot
// itself runs bottom-up.
type flippedTicks struct {
	e extent
}

func (f flippedTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i, t := range ticks {
		if t.Label == "" {
			continue
		}
		ticks[i].Label = formatTick(f.e.flipY(t.Value))
	}
	return ticks
}

func formatTick(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
