// Edge routing between rendered entities: nearest port pair, straight line.

package canvas

import (
	"fmt"
	"math"
)

// Box is the screen-space footprint of a rendered entity. Ports holds the
// centers of its discrete connection markers, if it has any.
type Box struct {
	Bounds Rect
	Ports  []Point
}

// LayoutRegistry resolves an entity id to its current screen-space box.
// ok is false when the entity is not rendered (removed, filtered, or not
// laid out yet).
type LayoutRegistry interface {
	Lookup(id string) (box Box, ok bool)
}

// LayoutMap is a LayoutRegistry backed by a map. Useful for tests and for
// front-ends that measure their own widgets.
type LayoutMap map[string]Box

// Lookup implements LayoutRegistry.
func (m LayoutMap) Lookup(id string) (Box, bool) {
	b, ok := m[id]
	return b, ok
}

// Path is a straight-line edge descriptor in canvas space.
type Path struct {
	From, To Point
}

// SVG returns the path as SVG path data.
func (p Path) SVG() string {
	return fmt.Sprintf("M %g %g L %g %g", p.From.X, p.From.Y, p.To.X, p.To.Y)
}

// Length returns the length of the path.
func (p Path) Length() float64 {
	return Dist(p.From, p.To)
}

// sourceCandidates returns the points an edge may leave from: the ports
// if the box has any, otherwise the four edge midpoints.
func sourceCandidates(b Box) []Point {
	if len(b.Ports) > 0 {
		return b.Ports
	}
	return b.Bounds.EdgeMidpoints()
}

// targetCandidates returns the top, bottom, left and right edge midpoints.
func targetCandidates(b Box) []Point {
	r := b.Bounds
	return []Point{
		{r.X + r.W/2, r.Y},
		{r.X + r.W/2, r.Y + r.H},
		{r.X, r.Y + r.H/2},
		{r.X + r.W, r.Y + r.H/2},
	}
}

// ClosestPorts picks the (from, to) pair with the smallest Euclidean
// distance over the full cross product of candidates. Ties keep the first
// pair found.
func ClosestPorts(from, to Box) (Point, Point) {
	fromPts := sourceCandidates(from)
	toPts := targetCandidates(to)

	best := math.Inf(1)
	bestFrom, bestTo := fromPts[0], toPts[0]
	for _, a := range fromPts {
		for _, b := range toPts {
			d := Dist(a, b)
			if d < best {
				best = d
				bestFrom, bestTo = a, b
			}
		}
	}
	return bestFrom, bestTo
}

// RouteEdge computes the canvas-space path from one rendered entity to
// another. It returns false when either entity is not in the registry.
func RouteEdge(reg LayoutRegistry, vp *Viewport, fromID, toID string) (Path, bool) {
	if reg == nil || vp == nil {
		return Path{}, false
	}
	fromBox, ok := reg.Lookup(fromID)
	if !ok {
		return Path{}, false
	}
	toBox, ok := reg.Lookup(toID)
	if !ok {
		return Path{}, false
	}

	a, b := ClosestPorts(fromBox, toBox)
	return Path{
		From: vp.ScreenToCanvas(a),
		To:   vp.ScreenToCanvas(b),
	}, true
}
