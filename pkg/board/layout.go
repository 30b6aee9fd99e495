package board

import (
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
	"github.com/ha1tch/moodcanvas/pkg/interact"
)

// Port is a connection marker placed at a fraction of a card's size.
type Port struct {
	FX, FY float64
	Start  bool // a connection gesture can begin here
}

// Shape is the fixed footprint of a card in canvas units.
type Shape struct {
	W, H  float64
	Ports []Port
}

var (
	portLeft   = Port{FX: 0, FY: 0.5}
	portRight  = Port{FX: 1, FY: 0.5}
	portTop    = Port{FX: 0.5, FY: 0}
	portBottom = Port{FX: 0.5, FY: 1}
)

func starting(p Port) Port {
	p.Start = true
	return p
}

// Card shapes per entity variant.
var (
	ImageShape   = Shape{W: 256, H: 220, Ports: []Port{starting(portLeft), starting(portRight)}}
	ConceptShape = Shape{W: 192, H: 96, Ports: []Port{portLeft, starting(portRight), portTop, portBottom}}
	ContextShape = Shape{W: 256, H: 120, Ports: []Port{portTop, starting(portBottom)}}
	OutputShape  = Shape{W: 288, H: 140, Ports: []Port{portLeft, portRight, portTop}}
	ItemShape    = Shape{W: 256, H: 120, Ports: []Port{portLeft, portRight, portTop, starting(portBottom)}}
	CardShape    = Shape{W: 320, H: 160}
)

// Hit-test sizes in canvas units.
const (
	PortRadius  = 8
	ControlSize = 16 // remove button in the top-right corner
)

// ShapeOfNode returns the shape for a node's kind.
func ShapeOfNode(n *graph.Node) Shape {
	switch n.Kind {
	case graph.KindContext:
		return ContextShape
	case graph.KindOutput:
		return OutputShape
	}
	return ConceptShape
}

// Layout is a static layout registry: card boxes computed from stored
// positions and fixed shapes, projected through a viewport.
type Layout struct {
	vp      *canvas.Viewport
	entries []Entry
	index   map[string]int
}

// NewLayout indexes entries (in draw order, bottom first) for vp.
func NewLayout(entries []Entry, vp *canvas.Viewport) *Layout {
	l := &Layout{vp: vp, entries: entries, index: make(map[string]int, len(entries))}
	for i, e := range entries {
		l.index[e.Ref.ID] = i
	}
	return l
}

var _ canvas.LayoutRegistry = (*Layout)(nil)

// Lookup implements canvas.LayoutRegistry in screen space.
func (l *Layout) Lookup(id string) (canvas.Box, bool) {
	i, ok := l.index[id]
	if !ok {
		return canvas.Box{}, false
	}
	e := l.entries[i]
	box := canvas.Box{Bounds: l.vp.RectToScreen(e.Bounds)}
	for _, p := range e.PortPoints() {
		box.Ports = append(box.Ports, l.vp.CanvasToScreen(p))
	}
	return box, true
}

// Entry returns the entry for id.
func (l *Layout) Entry(id string) (Entry, bool) {
	i, ok := l.index[id]
	if !ok {
		return Entry{}, false
	}
	return l.entries[i], true
}

// HitTest finds the top-most entity part under screen point p.
func (l *Layout) HitTest(p canvas.Point) interact.Hit {
	c := l.vp.ScreenToCanvas(p)
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		for j, port := range e.PortPoints() {
			if canvas.Dist(port, c) > PortRadius {
				continue
			}
			if e.Shape.Ports[j].Start {
				return interact.Hit{Kind: interact.HitPort, Ref: e.Ref, PortCenter: l.vp.CanvasToScreen(port)}
			}
			return interact.Hit{Kind: interact.HitControl, Ref: e.Ref}
		}
		if !e.Bounds.Contains(c) {
			continue
		}
		if e.ControlRect().Contains(c) {
			return interact.Hit{Kind: interact.HitControl, Ref: e.Ref}
		}
		return interact.Hit{Kind: interact.HitBody, Ref: e.Ref}
	}
	return interact.Hit{Kind: interact.HitBackground}
}

// Bounds returns the union of every entry's box in canvas space.
func (l *Layout) Bounds() (canvas.Rect, bool) {
	return EntriesBounds(l.entries)
}

// EntriesBounds returns the union of the entries' boxes.
func EntriesBounds(entries []Entry) (canvas.Rect, bool) {
	if len(entries) == 0 {
		return canvas.Rect{}, false
	}
	r := entries[0].Bounds
	for _, e := range entries[1:] {
		r = r.Union(e.Bounds)
	}
	return r, true
}
