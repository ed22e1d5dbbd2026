package bluetooth

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func anchorsFor(target Point, positions ...Point) []Anchor {
	out := make([]Anchor, len(positions))
	for i, p := range positions {
		out[i] = Anchor{Position: p, Distance: target.Dist(p)}
	}
	return out
}

func TestTrilaterateExact(t *testing.T) {
	anchors := []Anchor{
		{Scanner: "s1", Position: Point{0, 0}, Distance: math.Sqrt2},
		{Scanner: "s2", Position: Point{2, 0}, Distance: math.Sqrt2},
		{Scanner: "s3", Position: Point{0, 2}, Distance: math.Sqrt2},
	}

	p, err := Trilaterate(anchors)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, p.X, 1e-3)
	assert.InDelta(t, 1.0, p.Y, 1e-3)
}

func TestTrilaterateRecoversPosition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	layout := []Point{{0, 0}, {800, 0}, {800, 600}, {0, 600}, {400, 300}}

	for i := 0; i < 50; i++ {
		target := Point{X: rng.Float64() * 800, Y: rng.Float64() * 600}
		n := 3 + rng.Intn(len(layout)-2)

		p, err := Trilaterate(anchorsFor(target, layout[:n]...))
		require.NoError(t, err)
		assert.InDelta(t, target.X, p.X, 1e-6)
		assert.InDelta(t, target.Y, p.Y, 1e-6)
	}
}

// The normal equations must give the same answer as a QR least-squares
// solve of the linearized system.
func TestTrilaterateMatchesLeastSquares(t *testing.T) {
	anchors := []Anchor{
		{Position: Point{0, 0}, Distance: 5.3},
		{Position: Point{10, 0}, Distance: 7.9},
		{Position: Point{10, 10}, Distance: 9.4},
		{Position: Point{0, 10}, Distance: 6.1},
		{Position: Point{5, -3}, Distance: 5.8},
	}

	got, err := Trilaterate(anchors)
	require.NoError(t, err)

	x0, y0, d0 := anchors[0].Position.X, anchors[0].Position.Y, anchors[0].Distance
	rows := len(anchors) - 1
	a := mat.NewDense(rows, 2, nil)
	b := mat.NewVecDense(rows, nil)
	for i, an := range anchors[1:] {
		xi, yi, di := an.Position.X, an.Position.Y, an.Distance
		a.Set(i, 0, 2*(xi-x0))
		a.Set(i, 1, 2*(yi-y0))
		b.SetVec(i, d0*d0-di*di+xi*xi-x0*x0+yi*yi-y0*y0)
	}
	var want mat.VecDense
	require.NoError(t, want.SolveVec(a, b))

	assert.InDelta(t, want.AtVec(0), got.X, 1e-9)
	assert.InDelta(t, want.AtVec(1), got.Y, 1e-9)
}

func TestTrilaterateInsufficient(t *testing.T) {
	tests := []struct {
		name    string
		anchors []Anchor
	}{
		{"none", nil},
		{"two", anchorsFor(Point{1, 1}, Point{0, 0}, Point{2, 0})},
		{"nan distance dropped", []Anchor{
			{Position: Point{0, 0}, Distance: 1},
			{Position: Point{2, 0}, Distance: math.NaN()},
			{Position: Point{0, 2}, Distance: 1},
		}},
		{"negative distance dropped", []Anchor{
			{Position: Point{0, 0}, Distance: 1},
			{Position: Point{2, 0}, Distance: -1},
			{Position: Point{0, 2}, Distance: 1},
		}},
		{"infinite coordinate dropped", []Anchor{
			{Position: Point{0, 0}, Distance: 1},
			{Position: Point{math.Inf(1), 0}, Distance: 1},
			{Position: Point{0, 2}, Distance: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Trilaterate(tt.anchors)
			assert.ErrorIs(t, err, ErrInsufficientScanners)
		})
	}
}

func TestTrilaterateDegenerate(t *testing.T) {
	tests := []struct {
		name      string
		positions []Point
	}{
		{"collinear", []Point{{0, 0}, {1, 0}, {2, 0}}},
		{"collinear diagonal", []Point{{0, 0}, {1, 1}, {2, 2}, {5, 5}}},
		{"coincident", []Point{{3, 3}, {3, 3}, {3, 3}}},
		{"nearly collinear", []Point{{0, 0}, {1000, 0}, {2000, 1e-6}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Trilaterate(anchorsFor(Point{1, 1}, tt.positions...))
			require.ErrorIs(t, err, ErrDegenerateGeometry)
			assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y))
		})
	}
}

func TestPointDist(t *testing.T) {
	assert.InDelta(t, 5.0, Point{0, 0}.Dist(Point{3, 4}), 1e-12)
}
