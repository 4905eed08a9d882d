package coord

import (
	"math"
)

// Epsilon is the containment tolerance for mesh lookups: points within this
// distance of a triangle edge still count as inside.
const Epsilon = 0.001

const epsilonSq = Epsilon * Epsilon

// A Triangle is one face of a probed surface mesh.
type Triangle struct{ A, B, C Point }

// ContainsXY reports whether (x,y) falls inside the triangle's 2D
// projection, within Epsilon of its edges.
func (t Triangle) ContainsXY(x, y float64) bool {
	if !t.inBoundsXY(x, y) {
		return false
	}

	s1 := edgeSide(t.A, t.B, x, y)
	s2 := edgeSide(t.B, t.C, x, y)
	s3 := edgeSide(t.C, t.A, x, y)
	// all on one side works for either winding order
	if (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0) {
		return true
	}

	// The sign test is unreliable right on an edge; fall back to edge
	// distance there.
	return segmentDistSq(t.A, t.B, x, y) <= epsilonSq ||
		segmentDistSq(t.B, t.C, x, y) <= epsilonSq ||
		segmentDistSq(t.C, t.A, x, y) <= epsilonSq
}

// Z gives the height of the triangle's plane at (x,y).
func (t Triangle) Z(x, y float64) float64 {
	n := t.C.Sub(t.A).Cross(t.B.Sub(t.A))
	d := n.Dot(t.C)
	return (d - n.X*x - n.Y*y) / n.Z
}

func (t Triangle) inBoundsXY(x, y float64) bool {
	minX := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	maxX := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	minY := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	maxY := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon
	return minX <= x && x <= maxX && minY <= y && y <= maxY
}

// edgeSide is the signed area term for (x,y) against edge a->b; its sign
// says which side of the edge the point lies on.
func edgeSide(a, b Point, x, y float64) float64 {
	return (b.Y-a.Y)*(x-a.X) - (b.X-a.X)*(y-a.Y)
}

// segmentDistSq is the squared XY distance from (x,y) to segment a-b.
func segmentDistSq(a, b Point, x, y float64) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	frac := ((x-a.X)*dx + (y-a.Y)*dy) / lenSq
	switch {
	case frac < 0:
		return (x-a.X)*(x-a.X) + (y-a.Y)*(y-a.Y)
	case frac > 1:
		return (x-b.X)*(x-b.X) + (y-b.Y)*(y-b.Y)
	}
	px, py := a.X+frac*dx, a.Y+frac*dy
	return (x-px)*(x-px) + (y-py)*(y-py)
}
