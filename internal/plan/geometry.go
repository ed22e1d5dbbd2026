package plan

import (
	"math"

	"ble-locate.klederson.com/internal/bluetooth"
	"ble-locate.klederson.com/internal/config"
)

// Bounds is an axis-aligned window in floor-plan units.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundsOf returns the box around pts padded by 5% on each side. Empty or
// zero-size input still yields a usable box.
func BoundsOf(pts ...bluetooth.Point) Bounds {
	if len(pts) == 0 {
		return Bounds{0, 0, 1, 1}
	}
	b := Bounds{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, p := range pts {
		b.MinX, b.MaxX = math.Min(b.MinX, p.X), math.Max(b.MaxX, p.X)
		b.MinY, b.MaxY = math.Min(b.MinY, p.Y), math.Max(b.MaxY, p.Y)
	}
	padX := math.Max((b.MaxX-b.MinX)*0.05, 0.5)
	padY := math.Max((b.MaxY-b.MinY)*0.05, 0.5)
	return Bounds{b.MinX - padX, b.MinY - padY, b.MaxX + padX, b.MaxY + padY}
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Viewport maps floor-plan coordinates onto a character grid. Both use y
// growing downwards. A row covers 1/PlanAspectRatio times the distance of a
// column, so the plan keeps its proportions on screen.
type Viewport struct {
	Bounds Bounds
	Cols   int
	Rows   int

	scale          float64 // plan units per column
	offCol, offRow int
}

// NewViewport fits b into a cols x rows grid, centred.
func NewViewport(b Bounds, cols, rows int) Viewport {
	v := Viewport{Bounds: b, Cols: cols, Rows: rows}
	if cols < 2 || rows < 2 {
		v.scale = 1
		return v
	}
	sx := b.Width() / float64(cols-1)
	sy := b.Height() * config.PlanAspectRatio / float64(rows-1)
	v.scale = math.Max(sx, sy)
	if v.scale <= 0 {
		v.scale = 1
	}

	usedCols := int(math.Round(b.Width() / v.scale))
	usedRows := int(math.Round(b.Height() * config.PlanAspectRatio / v.scale))
	v.offCol = (cols - 1 - usedCols) / 2
	v.offRow = (rows - 1 - usedRows) / 2
	return v
}

// Cell returns the grid cell for p and whether it lies on the grid.
func (v Viewport) Cell(p bluetooth.Point) (col, row int, ok bool) {
	col = v.offCol + int(math.Round((p.X-v.Bounds.MinX)/v.scale))
	row = v.offRow + int(math.Round((p.Y-v.Bounds.MinY)*config.PlanAspectRatio/v.scale))
	ok = col >= 0 && col < v.Cols && row >= 0 && row < v.Rows
	return col, row, ok
}

// Point returns the plan coordinate at the centre of a cell.
func (v Viewport) Point(col, row int) bluetooth.Point {
	return bluetooth.Point{
		X: v.Bounds.MinX + float64(col-v.offCol)*v.scale,
		Y: v.Bounds.MinY + float64(row-v.offRow)*v.scale/config.PlanAspectRatio,
	}
}

// Inside reports whether the cell falls within the plan bounds.
func (v Viewport) Inside(col, row int) bool {
	p := v.Point(col, row)
	half := v.scale / 2
	return p.X >= v.Bounds.MinX-half && p.X <= v.Bounds.MaxX+half &&
		p.Y >= v.Bounds.MinY-half/config.PlanAspectRatio && p.Y <= v.Bounds.MaxY+half/config.PlanAspectRatio
}

// UnitsPerColumn returns the horizontal scale.
func (v Viewport) UnitsPerColumn() float64 {
	return v.scale
}

// GridStep picks a 1-2-5 spacing giving roughly five grid lines across span.
func GridStep(span float64) float64 {
	if span <= 0 {
		return 1
	}
	raw := span / 5
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch r := raw / mag; {
	case r < 1.5:
		return mag
	case r < 3.5:
		return 2 * mag
	case r < 7.5:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// crossesLine reports whether the interval [x-half, x+half) contains a
// multiple of step.
func crossesLine(x, half, step float64) bool {
	return math.Floor((x+half)/step) != math.Floor((x-half)/step)
}
