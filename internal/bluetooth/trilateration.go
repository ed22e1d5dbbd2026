package bluetooth

import (
	"math"

	"ble-locate.klederson.com/internal/config"
	"github.com/pkg/errors"
)

var (
	ErrInsufficientScanners = errors.New("fewer than 3 scanners with a position and a fresh distance")
	ErrDegenerateGeometry   = errors.New("scanner positions are collinear or coincident")
)

// Warnings logged when a device cannot be located.
const (
	msgInsufficientScanners = "Triangulation requires at least 3 scanners"
	msgDegenerateGeometry   = "Triangulation failed: scanner geometry is degenerate"
)

// degenerateTolerance bounds det(AᵀA) relative to trace(AᵀA)². For a 2x2
// symmetric positive semi-definite matrix this ratio is λ1·λ2/(λ1+λ2)², so
// it is scale free and only approaches zero as the anchors line up.
const degenerateTolerance = 1e-9

// Point is a 2D position in floor-plan units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Anchor is a scanner with a known position and an estimated distance to
// the device being located.
type Anchor struct {
	Scanner  string
	Position Point
	Distance float64
}

// Trilaterate finds the point that best satisfies
// (x-xi)² + (y-yi)² = di² for every anchor.
//
// The first anchor's equation is subtracted from the others, which removes
// the quadratic terms and leaves n-1 linear equations
//
//	2(xi-x0)·x + 2(yi-y0)·y = d0² - di² + xi² - x0² + yi² - y0²
//
// solved in the least-squares sense through the 2x2 normal equations. With
// exactly three anchors the system is square and the solution is exact.
// Anchors with non-finite or negative distances are ignored.
func Trilaterate(anchors []Anchor) (Point, error) {
	usable := make([]Anchor, 0, len(anchors))
	for _, a := range anchors {
		if isFinite(a.Distance) && a.Distance >= 0 && isFinite(a.Position.X) && isFinite(a.Position.Y) {
			usable = append(usable, a)
		}
	}
	if len(usable) < config.MinTriangulationScanners {
		return Point{}, ErrInsufficientScanners
	}

	ref := usable[0]
	x0, y0, d0 := ref.Position.X, ref.Position.Y, ref.Distance

	// Accumulate AᵀA and Aᵀb directly.
	var ata00, ata01, ata11, atb0, atb1 float64
	for _, a := range usable[1:] {
		xi, yi, di := a.Position.X, a.Position.Y, a.Distance
		r0 := 2 * (xi - x0)
		r1 := 2 * (yi - y0)
		b := d0*d0 - di*di + xi*xi - x0*x0 + yi*yi - y0*y0

		ata00 += r0 * r0
		ata01 += r0 * r1
		ata11 += r1 * r1
		atb0 += r0 * b
		atb1 += r1 * b
	}

	det := ata00*ata11 - ata01*ata01
	trace := ata00 + ata11
	if trace == 0 || det <= degenerateTolerance*trace*trace {
		return Point{}, ErrDegenerateGeometry
	}

	p := Point{
		X: (ata11*atb0 - ata01*atb1) / det,
		Y: (ata00*atb1 - ata01*atb0) / det,
	}
	if !isFinite(p.X) || !isFinite(p.Y) {
		return Point{}, ErrDegenerateGeometry
	}
	return p, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
