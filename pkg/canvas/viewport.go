// Package canvas provides the coordinate transform between screen space
// (pointer and viewport pixels) and canvas space (where entity positions
// are stored), plus the geometry used to route edges between rendered
// entities.
package canvas

import "math"

// Zoom limits and the step used by zoom buttons.
const (
	MinZoom  = 0.2
	MaxZoom  = 2.0
	ZoomStep = 0.1
)

// Affine is a uniform-scale-plus-translation transform: p*Scale + Offset.
type Affine struct {
	Scale  float64
	Offset Point
}

// Translate returns a pure translation.
func Translate(d Point) Affine { return Affine{Scale: 1, Offset: d} }

// Scaling returns a pure scale about the origin.
func Scaling(s float64) Affine { return Affine{Scale: s} }

// Apply maps p through the transform.
func (a Affine) Apply(p Point) Point {
	return Point{p.X*a.Scale + a.Offset.X, p.Y*a.Scale + a.Offset.Y}
}

// Then returns the transform that applies b first and a second, the same
// order a CSS transform list like "translate(...) scale(...)" composes.
func (a Affine) Then(b Affine) Affine {
	return Affine{
		Scale:  a.Scale * b.Scale,
		Offset: a.Apply(b.Offset),
	}
}

// Inverse returns the inverse transform. A zero scale has no inverse and
// yields the identity.
func (a Affine) Inverse() Affine {
	if a.Scale == 0 {
		return Affine{Scale: 1}
	}
	inv := 1 / a.Scale
	return Affine{
		Scale:  inv,
		Offset: Point{-a.Offset.X * inv, -a.Offset.Y * inv},
	}
}

// Viewport holds pan and zoom state for a canvas shown in a screen region.
//
// Rendered content is positioned with translate(Pan) then scale(Zoom) from
// the viewport's top-left, so screen = Origin + Pan + canvas*Zoom.
type Viewport struct {
	Origin Point   // screen-space top-left of the viewport
	Width  float64 // screen-space size, used for edge margins
	Height float64
	Pan    Point // translation of the viewport origin, in screen pixels
	Zoom   float64
}

// NewViewport returns a viewport at zoom 1 with no pan.
func NewViewport(width, height float64) *Viewport {
	return &Viewport{Width: width, Height: height, Zoom: 1}
}

// ClampZoom limits z to [MinZoom, MaxZoom]. NaN maps to 1.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// SetZoom sets the zoom factor, clamping silently.
func (v *Viewport) SetZoom(z float64) {
	v.Zoom = ClampZoom(z)
}

// ZoomBy adds delta to the zoom factor, clamping silently.
func (v *Viewport) ZoomBy(delta float64) {
	v.SetZoom(v.Zoom + delta)
}

// ResetZoom restores zoom 1. Pan is kept.
func (v *Viewport) ResetZoom() {
	v.Zoom = 1
}

// PanBy translates the viewport by a screen-space delta.
func (v *Viewport) PanBy(d Point) {
	v.Pan = v.Pan.Add(d)
}

// Resize updates the screen-space region of the viewport.
func (v *Viewport) Resize(origin Point, width, height float64) {
	v.Origin = origin
	v.Width = width
	v.Height = height
}

// Bounds returns the viewport region in screen space.
func (v *Viewport) Bounds() Rect {
	return Rect{v.Origin.X, v.Origin.Y, v.Width, v.Height}
}

// Affine returns the canvas-to-screen transform.
func (v *Viewport) Affine() Affine {
	return Translate(v.Origin.Add(v.Pan)).Then(Scaling(v.zoom()))
}

// ScreenToCanvas maps a screen point into canvas space:
// (p - Origin - Pan) / Zoom.
func (v *Viewport) ScreenToCanvas(p Point) Point {
	return v.Affine().Inverse().Apply(p)
}

// CanvasToScreen maps a canvas point into screen space.
func (v *Viewport) CanvasToScreen(p Point) Point {
	return v.Affine().Apply(p)
}

// RectToScreen maps a canvas-space rectangle into screen space.
func (v *Viewport) RectToScreen(r Rect) Rect {
	tl := v.CanvasToScreen(r.Min())
	z := v.zoom()
	return Rect{tl.X, tl.Y, r.W * z, r.H * z}
}

// RectToCanvas maps a screen-space rectangle into canvas space.
func (v *Viewport) RectToCanvas(r Rect) Rect {
	tl := v.ScreenToCanvas(r.Min())
	z := v.zoom()
	return Rect{tl.X, tl.Y, r.W / z, r.H / z}
}

// zoom guards against a zero-value Viewport.
func (v *Viewport) zoom() float64 {
	if v.Zoom == 0 {
		return 1
	}
	return v.Zoom
}
