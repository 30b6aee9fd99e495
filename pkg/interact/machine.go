// Package interact arbitrates pointer, wheel and touch input over a
// canvas: panning, zooming, dragging entities, drawing connections and
// rubber-band area selection. Exactly one gesture is active at a time.
//
// A Machine is not safe for concurrent use. Feed it events from the
// goroutine that owns the viewport, and have the FrameScheduler post
// frames back to that goroutine.
package interact

import (
	"math"

	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// State is the active gesture.
type State int

const (
	Idle State = iota
	Panning
	Dragging
	Connecting
	Selecting
	Pinching
)

func (s State) String() string {
	switch s {
	case Panning:
		return "panning"
	case Dragging:
		return "dragging"
	case Connecting:
		return "connecting"
	case Selecting:
		return "selecting"
	case Pinching:
		return "pinching"
	}
	return "idle"
}

// Defaults for Options.
const (
	DefaultAutoPanMargin   = 60
	DefaultAutoPanSpeed    = 10
	DefaultSelectThreshold = 5
	DefaultWheelZoomFactor = 0.001
)

// Options tune gesture behaviour. Zero fields take the defaults.
type Options struct {
	AutoPanMargin   float64 // screen distance from the viewport edge that triggers auto-pan
	AutoPanSpeed    float64 // pan per frame while auto-panning
	SelectThreshold float64 // both sides of a selection must exceed this
	WheelZoomFactor float64 // zoom change per unit of wheel delta
}

func (o Options) withDefaults() Options {
	if o.AutoPanMargin <= 0 {
		o.AutoPanMargin = DefaultAutoPanMargin
	}
	if o.AutoPanSpeed <= 0 {
		o.AutoPanSpeed = DefaultAutoPanSpeed
	}
	if o.SelectThreshold <= 0 {
		o.SelectThreshold = DefaultSelectThreshold
	}
	if o.WheelZoomFactor <= 0 {
		o.WheelZoomFactor = DefaultWheelZoomFactor
	}
	return o
}

// Machine is the interaction state machine.
type Machine struct {
	vp    *canvas.Viewport
	host  Host
	sched FrameScheduler
	opts  Options

	state      State
	selectMode bool
	readOnly   bool

	last canvas.Point // last pointer position, screen space

	// dragging
	dragID       string
	dragStart    canvas.Point // entity position at gesture start
	pointerStart canvas.Point

	// connecting, canvas space
	connFrom   graph.EntityRef
	connStart  canvas.Point
	connTarget canvas.Point

	// selecting
	anchor        canvas.Point // canvas space
	selection     canvas.Rect
	autoPanDir    canvas.Point
	cancelAutoPan func()

	// pinching
	pinchStartDist float64
	pinchStartZoom float64
}

// NewMachine returns an idle machine driving vp and host.
func NewMachine(vp *canvas.Viewport, host Host, sched FrameScheduler, opts Options) *Machine {
	return &Machine{
		vp:    vp,
		host:  host,
		sched: sched,
		opts:  opts.withDefaults(),
	}
}

// State returns the active gesture.
func (m *Machine) State() State { return m.state }

// Viewport returns the viewport the machine drives.
func (m *Machine) Viewport() *canvas.Viewport { return m.vp }

// SelectMode reports whether export-selection mode is on.
func (m *Machine) SelectMode() bool { return m.selectMode }

// SetSelectMode toggles export-selection mode. Turning it off during a
// selection discards the selection.
func (m *Machine) SetSelectMode(on bool) {
	if !on && m.state == Selecting {
		m.stopAutoPan()
		m.state = Idle
	}
	m.selectMode = on
}

// SetReadOnly disables dragging and connecting. Panning and zooming still
// work.
func (m *Machine) SetReadOnly(ro bool) { m.readOnly = ro }

// Provisional returns the in-progress connection line in canvas space.
func (m *Machine) Provisional() (from, to canvas.Point, ok bool) {
	if m.state != Connecting {
		return canvas.Point{}, canvas.Point{}, false
	}
	return m.connStart, m.connTarget, true
}

// ConnectingFrom returns the entity a connection gesture started on.
func (m *Machine) ConnectingFrom() (graph.EntityRef, bool) {
	return m.connFrom, m.state == Connecting
}

// Selection returns the in-progress selection rectangle in canvas space.
func (m *Machine) Selection() (canvas.Rect, bool) {
	return m.selection, m.state == Selecting
}

// Dragged returns the id of the entity being dragged.
func (m *Machine) Dragged() (string, bool) {
	return m.dragID, m.state == Dragging
}

// AutoPanning reports whether an auto-pan frame loop is running.
func (m *Machine) AutoPanning() bool { return m.cancelAutoPan != nil }

// PointerDown starts a gesture at screen point p. It is ignored while
// another gesture is active.
func (m *Machine) PointerDown(p canvas.Point) {
	if m.state != Idle || !finite(p) {
		return
	}
	m.last = p

	if m.selectMode {
		m.anchor = m.vp.ScreenToCanvas(p)
		m.selection = canvas.Rect{X: m.anchor.X, Y: m.anchor.Y}
		m.state = Selecting
		return
	}

	hit := m.host.HitTest(p)
	switch hit.Kind {
	case HitBackground:
		m.state = Panning
	case HitPort:
		if m.readOnly || hit.Ref.ID == "" {
			return
		}
		m.connFrom = hit.Ref
		m.connStart = m.vp.ScreenToCanvas(hit.PortCenter)
		m.connTarget = m.vp.ScreenToCanvas(p)
		m.state = Connecting
	case HitBody:
		if m.readOnly {
			return
		}
		pos, ok := m.host.Position(hit.Ref.ID)
		if !ok {
			return
		}
		m.dragID = hit.Ref.ID
		m.dragStart = pos
		m.pointerStart = p
		m.state = Dragging
	}
	// HitControl: the control handles the press itself.
}

// PointerMove advances the active gesture.
func (m *Machine) PointerMove(p canvas.Point) {
	if !finite(p) {
		return
	}
	prev := m.last
	m.last = p

	switch m.state {
	case Panning:
		m.vp.PanBy(p.Sub(prev))
	case Dragging:
		// Screen delta is added to the stored position as is.
		m.host.SetPosition(m.dragID, m.dragStart.Add(p.Sub(m.pointerStart)))
	case Connecting:
		m.connTarget = m.vp.ScreenToCanvas(p)
	case Selecting:
		m.updateSelection()
		m.updateAutoPan(p)
	}
}

// PointerUp ends the active gesture at p.
func (m *Machine) PointerUp(p canvas.Point) {
	m.last = p

	switch m.state {
	case Dragging:
		m.host.SetPosition(m.dragID, m.dragStart.Add(p.Sub(m.pointerStart)))
		m.dragID = ""
	case Connecting:
		hit := m.host.HitTest(p)
		if hit.OnEntity() {
			m.host.Connect(m.connFrom, hit.Ref)
		}
		m.connFrom = graph.EntityRef{}
	case Selecting:
		m.finishSelection()
	}
	m.state = Idle
}

// PointerLeave is called when the pointer leaves the viewport. Panning
// ends and a selection is emitted as if released; dragging and connecting
// keep tracking the pointer.
func (m *Machine) PointerLeave() {
	switch m.state {
	case Panning:
		m.state = Idle
	case Selecting:
		m.finishSelection()
		m.state = Idle
	}
}

// Cancel abandons the active gesture without committing anything. A drag
// leaves the entity where it currently is.
func (m *Machine) Cancel() {
	m.stopAutoPan()
	m.dragID = ""
	m.connFrom = graph.EntityRef{}
	m.state = Idle
}

// Wheel handles a wheel or trackpad scroll. With the zoom modifier held
// it zooms, otherwise it pans. Ignored in export-selection mode.
func (m *Machine) Wheel(dx, dy float64, zoomModifier bool) {
	if m.selectMode {
		return
	}
	if zoomModifier {
		m.vp.ZoomBy(-dy * m.opts.WheelZoomFactor)
		return
	}
	m.vp.PanBy(canvas.Point{X: -dx, Y: -dy})
}

// TouchStart handles fingers landing. One finger behaves like a pointer
// press; two fingers start a pinch, abandoning any other gesture.
func (m *Machine) TouchStart(touches []canvas.Point) {
	switch len(touches) {
	case 0:
		return
	case 1:
		m.PointerDown(touches[0])
	default:
		m.Cancel()
		m.pinchStartDist = canvas.Dist(touches[0], touches[1])
		m.pinchStartZoom = m.vp.Zoom
		m.state = Pinching
	}
}

// TouchMove handles finger movement.
func (m *Machine) TouchMove(touches []canvas.Point) {
	switch {
	case len(touches) >= 2 && m.state == Pinching:
		if m.pinchStartDist <= 0 {
			return
		}
		d := canvas.Dist(touches[0], touches[1])
		m.vp.SetZoom(m.pinchStartZoom * d / m.pinchStartDist)
	case len(touches) == 1 && m.state != Pinching:
		m.PointerMove(touches[0])
	}
}

// TouchEnd handles fingers lifting; remaining lists the fingers still
// down. Dropping below two fingers ends a pinch, and a remaining finger
// resumes panning.
func (m *Machine) TouchEnd(remaining []canvas.Point) {
	if m.state == Pinching {
		if len(remaining) >= 2 {
			return
		}
		m.pinchStartDist, m.pinchStartZoom = 0, 0
		m.state = Idle
		if len(remaining) == 1 {
			m.last = remaining[0]
			m.state = Panning
		}
		return
	}
	if len(remaining) == 0 {
		m.PointerUp(m.last)
	}
}

// ZoomIn, ZoomOut and ResetZoom back the zoom buttons.
func (m *Machine) ZoomIn() { m.vp.ZoomBy(canvas.ZoomStep) }

func (m *Machine) ZoomOut() { m.vp.ZoomBy(-canvas.ZoomStep) }

func (m *Machine) ResetZoom() { m.vp.ResetZoom() }

func (m *Machine) updateSelection() {
	cur := m.vp.ScreenToCanvas(m.last)
	m.selection = canvas.RectFromPoints(m.anchor, cur)
}

func (m *Machine) finishSelection() {
	m.stopAutoPan()
	r := m.selection
	t := m.opts.SelectThreshold
	if r.W > t && r.H > t {
		m.host.AreaSelected(r)
	}
	m.selection = canvas.Rect{}
}

// autoPanDirection returns the per-frame pan for a pointer near the
// viewport edges. Content moves toward the pointer's side so the hidden
// region scrolls into view.
func (m *Machine) autoPanDirection(p canvas.Point) canvas.Point {
	b := m.vp.Bounds()
	margin, speed := m.opts.AutoPanMargin, m.opts.AutoPanSpeed
	var d canvas.Point
	if p.X < b.X+margin {
		d.X = speed
	}
	if p.X > b.X+b.W-margin {
		d.X = -speed
	}
	if p.Y < b.Y+margin {
		d.Y = speed
	}
	if p.Y > b.Y+b.H-margin {
		d.Y = -speed
	}
	return d
}

func (m *Machine) updateAutoPan(p canvas.Point) {
	m.stopAutoPan()
	m.autoPanDir = m.autoPanDirection(p)
	if m.autoPanDir == (canvas.Point{}) || m.sched == nil {
		return
	}
	m.scheduleAutoPan()
}

func (m *Machine) scheduleAutoPan() {
	m.cancelAutoPan = m.sched.RequestFrame(func() {
		if m.state != Selecting {
			m.cancelAutoPan = nil
			return
		}
		m.vp.PanBy(m.autoPanDir)
		m.updateSelection()
		m.scheduleAutoPan()
	})
}

func (m *Machine) stopAutoPan() {
	if m.cancelAutoPan != nil {
		m.cancelAutoPan()
		m.cancelAutoPan = nil
	}
	m.autoPanDir = canvas.Point{}
}

// finite guards against NaN from degenerate input.
func finite(p canvas.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
