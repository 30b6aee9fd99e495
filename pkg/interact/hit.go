package interact

import (
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// HitKind classifies what lies under a screen point.
type HitKind int

const (
	HitBackground HitKind = iota // empty canvas
	HitBody                      // draggable area of an entity
	HitPort                      // connection affordance of an entity
	HitControl                   // button or text field inside an entity
)

func (k HitKind) String() string {
	switch k {
	case HitBody:
		return "body"
	case HitPort:
		return "port"
	case HitControl:
		return "control"
	}
	return "background"
}

// Hit is the result of a hit test. Ref is zero for HitBackground.
// PortCenter is the screen-space centre of the port for HitPort.
type Hit struct {
	Kind       HitKind
	Ref        graph.EntityRef
	PortCenter canvas.Point
}

// OnEntity reports whether the hit landed on any part of an entity.
func (h Hit) OnEntity() bool {
	return h.Kind != HitBackground && h.Ref.ID != ""
}

// Host is what the machine drives. All points are screen space except
// entity positions, which are whatever space the host stores them in.
type Host interface {
	// HitTest reports what lies under a screen point.
	HitTest(p canvas.Point) Hit
	// Position returns an entity's stored position.
	Position(id string) (canvas.Point, bool)
	// SetPosition sets an entity's stored position.
	SetPosition(id string, p canvas.Point) bool
	// Connect is called when a connection gesture is released over an
	// entity. The acceptor decides whether and how to commit.
	Connect(from, to graph.EntityRef) bool
	// AreaSelected receives the canvas-space export rectangle.
	AreaSelected(r canvas.Rect)
}
