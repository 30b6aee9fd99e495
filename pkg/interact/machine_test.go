package interact

import (
	"math"
	"testing"

	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

type region struct {
	rect canvas.Rect
	hit  Hit
}

type fakeHost struct {
	regions   []region // first match wins
	positions map[string]canvas.Point
	connects  [][2]graph.EntityRef
	selected  []canvas.Rect
	accept    bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{positions: make(map[string]canvas.Point), accept: true}
}

func (h *fakeHost) HitTest(p canvas.Point) Hit {
	for _, r := range h.regions {
		if r.rect.Contains(p) {
			return r.hit
		}
	}
	return Hit{Kind: HitBackground}
}

func (h *fakeHost) Position(id string) (canvas.Point, bool) {
	p, ok := h.positions[id]
	return p, ok
}

func (h *fakeHost) SetPosition(id string, p canvas.Point) bool {
	if _, ok := h.positions[id]; !ok {
		return false
	}
	h.positions[id] = p
	return true
}

func (h *fakeHost) Connect(from, to graph.EntityRef) bool {
	h.connects = append(h.connects, [2]graph.EntityRef{from, to})
	return h.accept
}

func (h *fakeHost) AreaSelected(r canvas.Rect) {
	h.selected = append(h.selected, r)
}

var (
	imgRef  = graph.EntityRef{Kind: graph.EntityImage, ID: "img"}
	nodeRef = graph.EntityRef{Kind: graph.EntityNode, ID: "node"}
)

// setup places an image body at (100,100)-(200,200) with a port at
// (200,150), and a node body at (400,100)-(500,200).
func setup() (*Machine, *fakeHost, *ManualScheduler, *canvas.Viewport) {
	h := newFakeHost()
	h.positions["img"] = canvas.Point{X: 100, Y: 100}
	h.positions["node"] = canvas.Point{X: 400, Y: 100}
	h.regions = []region{
		{canvas.Rect{X: 195, Y: 145, W: 10, H: 10}, Hit{Kind: HitPort, Ref: imgRef, PortCenter: canvas.Point{X: 200, Y: 150}}},
		{canvas.Rect{X: 180, Y: 100, W: 15, H: 15}, Hit{Kind: HitControl, Ref: imgRef}},
		{canvas.Rect{X: 100, Y: 100, W: 100, H: 100}, Hit{Kind: HitBody, Ref: imgRef}},
		{canvas.Rect{X: 400, Y: 100, W: 100, H: 100}, Hit{Kind: HitBody, Ref: nodeRef}},
	}
	vp := canvas.NewViewport(800, 600)
	s := &ManualScheduler{}
	return NewMachine(vp, h, s, Options{}), h, s, vp
}

func pt(x, y float64) canvas.Point { return canvas.Point{X: x, Y: y} }

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPanOnBackground(t *testing.T) {
	m, _, _, vp := setup()
	m.PointerDown(pt(10, 10))
	if m.State() != Panning {
		t.Fatalf("Expected panning, got %s", m.State())
	}
	m.PointerMove(pt(30, 5))
	m.PointerMove(pt(40, 15))
	if vp.Pan != pt(30, 5) {
		t.Errorf("Expected pan (30,5), got %+v", vp.Pan)
	}
	m.PointerUp(pt(40, 15))
	if m.State() != Idle {
		t.Errorf("Expected idle after release, got %s", m.State())
	}
	m.PointerMove(pt(100, 100))
	if vp.Pan != pt(30, 5) {
		t.Errorf("Moves after release must not pan")
	}
}

func TestPanEndsOnLeave(t *testing.T) {
	m, _, _, _ := setup()
	m.PointerDown(pt(10, 10))
	m.PointerLeave()
	if m.State() != Idle {
		t.Errorf("Expected idle after leave, got %s", m.State())
	}
}

func TestDragUsesScreenDelta(t *testing.T) {
	m, h, _, vp := setup()
	vp.SetZoom(2)
	m.PointerDown(pt(150, 150))
	if m.State() != Dragging {
		t.Fatalf("Expected dragging, got %s", m.State())
	}
	m.PointerMove(pt(170, 140))
	if h.positions["img"] != pt(120, 90) {
		t.Errorf("Expected (120,90), got %+v", h.positions["img"])
	}
	// Dragging survives leaving the viewport.
	m.PointerLeave()
	m.PointerMove(pt(250, 250))
	m.PointerUp(pt(260, 250))
	if h.positions["img"] != pt(210, 200) {
		t.Errorf("Expected (210,200), got %+v", h.positions["img"])
	}
	if vp.Pan != (canvas.Point{}) {
		t.Errorf("Drag must not pan, got %+v", vp.Pan)
	}
}

func TestControlDoesNothing(t *testing.T) {
	m, h, _, vp := setup()
	m.PointerDown(pt(185, 105))
	m.PointerMove(pt(300, 300))
	if m.State() != Idle || vp.Pan != (canvas.Point{}) || h.positions["img"] != pt(100, 100) {
		t.Errorf("Control press must not start a gesture")
	}
}

func TestConnectCommitsOnEntity(t *testing.T) {
	m, h, _, vp := setup()
	vp.Pan = pt(20, 0)
	m.PointerDown(pt(198, 152))
	if m.State() != Connecting {
		t.Fatalf("Expected connecting, got %s", m.State())
	}
	from, to, ok := m.Provisional()
	if !ok || from != pt(180, 150) || to != pt(178, 152) {
		t.Errorf("Unexpected provisional line %+v -> %+v", from, to)
	}
	m.PointerMove(pt(420, 130))
	_, to, _ = m.Provisional()
	if to != pt(400, 130) {
		t.Errorf("Expected provisional end (400,130), got %+v", to)
	}
	m.PointerUp(pt(450, 150))
	if len(h.connects) != 1 || h.connects[0][0] != imgRef || h.connects[0][1] != nodeRef {
		t.Errorf("Expected img->node connect, got %+v", h.connects)
	}
	if _, _, ok := m.Provisional(); ok {
		t.Errorf("Provisional line should clear on release")
	}
}

func TestConnectCancelledOnBackground(t *testing.T) {
	m, h, _, _ := setup()
	m.PointerDown(pt(200, 150))
	m.PointerUp(pt(700, 500))
	if len(h.connects) != 0 {
		t.Errorf("Release on background must not connect, got %+v", h.connects)
	}
	if m.State() != Idle {
		t.Errorf("Expected idle, got %s", m.State())
	}
}

func TestReadOnly(t *testing.T) {
	m, h, _, _ := setup()
	m.SetReadOnly(true)
	m.PointerDown(pt(200, 150))
	if m.State() != Idle {
		t.Errorf("Read-only port press should be ignored, got %s", m.State())
	}
	m.PointerDown(pt(150, 150))
	m.PointerMove(pt(160, 160))
	if m.State() != Idle || h.positions["img"] != pt(100, 100) {
		t.Errorf("Read-only body press should not drag")
	}
	m.PointerDown(pt(10, 10))
	if m.State() != Panning {
		t.Errorf("Read-only background press should still pan, got %s", m.State())
	}
}

func TestSelectionEmitsNormalisedRect(t *testing.T) {
	m, h, s, vp := setup()
	vp.Pan = pt(100, 100)
	vp.SetZoom(2)
	m.SetSelectMode(true)

	m.PointerDown(pt(500, 400)) // canvas (200,150)
	if m.State() != Selecting {
		t.Fatalf("Expected selecting, got %s", m.State())
	}
	m.PointerMove(pt(300, 200)) // canvas (100,50)
	r, ok := m.Selection()
	if !ok || r != (canvas.Rect{X: 100, Y: 50, W: 100, H: 100}) {
		t.Errorf("Unexpected selection %+v", r)
	}
	if s.Pending() != 0 {
		t.Errorf("No auto-pan expected away from edges")
	}
	m.PointerUp(pt(300, 200))
	if len(h.selected) != 1 || h.selected[0] != r {
		t.Errorf("Expected %+v emitted, got %+v", r, h.selected)
	}
}

func TestSelectionNoiseDiscarded(t *testing.T) {
	tests := []struct {
		name string
		end  canvas.Point
		emit bool
	}{
		{"tiny", pt(303, 303), false},
		{"thin", pt(400, 304), false},
		{"exactly threshold", pt(305, 305), false},
		{"just over", pt(306, 306), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, h, _, _ := setup()
			m.SetSelectMode(true)
			m.PointerDown(pt(300, 300))
			m.PointerMove(tt.end)
			m.PointerUp(tt.end)
			if (len(h.selected) == 1) != tt.emit {
				t.Errorf("Expected emit=%v, got %+v", tt.emit, h.selected)
			}
		})
	}
}

func TestSelectModeOverridesHits(t *testing.T) {
	m, h, _, _ := setup()
	m.SetSelectMode(true)
	m.PointerDown(pt(150, 150))
	m.PointerMove(pt(250, 250))
	if m.State() != Selecting || h.positions["img"] != pt(100, 100) {
		t.Errorf("Select mode should select, not drag")
	}
}

func TestAutoPanRunsAndCancels(t *testing.T) {
	m, h, s, vp := setup()
	m.SetSelectMode(true)
	m.PointerDown(pt(400, 300))
	m.PointerMove(pt(20, 300)) // within the left margin

	if !m.AutoPanning() || s.Pending() != 1 {
		t.Fatalf("Expected one pending auto-pan frame, got %d", s.Pending())
	}
	s.Step()
	s.Step()
	s.Step()
	if vp.Pan != pt(30, 0) {
		t.Errorf("Expected pan (30,0) after 3 frames, got %+v", vp.Pan)
	}
	r, _ := m.Selection()
	if !near(r.X, -10) || !near(r.W, 410) {
		t.Errorf("Selection should follow auto-pan, got %+v", r)
	}

	m.PointerMove(pt(400, 300))
	if m.AutoPanning() || s.Pending() != 0 {
		t.Errorf("Auto-pan should stop away from edges")
	}

	m.PointerMove(pt(780, 590)) // bottom-right corner
	s.Step()
	if vp.Pan != pt(20, -10) {
		t.Errorf("Expected pan (20,-10), got %+v", vp.Pan)
	}
	m.PointerUp(pt(780, 590))
	if m.AutoPanning() || s.Pending() != 0 {
		t.Errorf("Auto-pan must be cancelled on release")
	}
	if s.Step() != 0 {
		t.Errorf("No frames should run after release")
	}
	if len(h.selected) != 1 {
		t.Errorf("Expected selection to be emitted")
	}
}

func TestSelectionEndsOnLeave(t *testing.T) {
	m, h, s, _ := setup()
	m.SetSelectMode(true)
	m.PointerDown(pt(400, 300))
	m.PointerMove(pt(790, 500))
	m.PointerLeave()
	if m.State() != Idle || s.Pending() != 0 {
		t.Errorf("Leave should end selection and auto-pan")
	}
	if len(h.selected) != 1 {
		t.Errorf("Expected selection on leave, got %+v", h.selected)
	}
}

func TestTogglingSelectModeOffDiscards(t *testing.T) {
	m, h, s, _ := setup()
	m.SetSelectMode(true)
	m.PointerDown(pt(400, 300))
	m.PointerMove(pt(10, 10))
	m.SetSelectMode(false)
	if m.State() != Idle || s.Pending() != 0 || len(h.selected) != 0 {
		t.Errorf("Expected selection discarded")
	}
}

func TestWheel(t *testing.T) {
	m, _, _, vp := setup()
	m.Wheel(0, -100, true)
	if !near(vp.Zoom, 1.1) {
		t.Errorf("Expected zoom 1.1, got %v", vp.Zoom)
	}
	m.Wheel(0, 100000, true)
	if vp.Zoom != canvas.MinZoom {
		t.Errorf("Expected clamp to %v, got %v", canvas.MinZoom, vp.Zoom)
	}
	m.Wheel(5, 7, false)
	if vp.Pan != pt(-5, -7) {
		t.Errorf("Expected pan (-5,-7), got %+v", vp.Pan)
	}
	m.SetSelectMode(true)
	m.Wheel(5, 7, false)
	m.Wheel(0, -100, true)
	if vp.Pan != pt(-5, -7) || vp.Zoom != canvas.MinZoom {
		t.Errorf("Wheel must be ignored in select mode")
	}
}

func TestPinch(t *testing.T) {
	m, _, _, vp := setup()
	vp.SetZoom(0.5)
	m.TouchStart([]canvas.Point{pt(50, 50)})
	if m.State() != Panning {
		t.Fatalf("Expected single-finger pan, got %s", m.State())
	}
	m.TouchStart([]canvas.Point{pt(100, 100), pt(200, 100)})
	if m.State() != Pinching {
		t.Fatalf("Expected pinching, got %s", m.State())
	}
	m.TouchMove([]canvas.Point{pt(50, 100), pt(250, 100)})
	if !near(vp.Zoom, 1.0) {
		t.Errorf("Expected zoom 1.0, got %v", vp.Zoom)
	}
	m.TouchMove([]canvas.Point{pt(0, 0), pt(2000, 0)})
	if vp.Zoom != canvas.MaxZoom {
		t.Errorf("Expected clamp to %v, got %v", canvas.MaxZoom, vp.Zoom)
	}

	m.TouchEnd([]canvas.Point{pt(300, 300)})
	if m.State() != Panning {
		t.Fatalf("Expected pan to resume, got %s", m.State())
	}
	pan := vp.Pan
	m.TouchMove([]canvas.Point{pt(310, 320)})
	if vp.Pan != pan.Add(pt(10, 20)) {
		t.Errorf("Expected pan to move by (10,20), got %+v", vp.Pan)
	}
	m.TouchEnd(nil)
	if m.State() != Idle {
		t.Errorf("Expected idle, got %s", m.State())
	}
}

func TestPinchCancelsDrag(t *testing.T) {
	m, h, _, _ := setup()
	m.TouchStart([]canvas.Point{pt(150, 150)})
	m.TouchMove([]canvas.Point{pt(160, 150)})
	m.TouchStart([]canvas.Point{pt(160, 150), pt(300, 150)})
	if m.State() != Pinching {
		t.Fatalf("Expected pinching, got %s", m.State())
	}
	if h.positions["img"] != pt(110, 100) {
		t.Errorf("Drag should keep its last position, got %+v", h.positions["img"])
	}
}

func TestZoomButtons(t *testing.T) {
	m, _, _, vp := setup()
	for i := 0; i < 20; i++ {
		m.ZoomIn()
	}
	if vp.Zoom != canvas.MaxZoom {
		t.Errorf("Expected %v, got %v", canvas.MaxZoom, vp.Zoom)
	}
	m.ZoomOut()
	if !near(vp.Zoom, 1.9) {
		t.Errorf("Expected 1.9, got %v", vp.Zoom)
	}
	m.ResetZoom()
	if vp.Zoom != 1 {
		t.Errorf("Expected 1, got %v", vp.Zoom)
	}
}

func TestOneGestureAtATime(t *testing.T) {
	m, h, _, _ := setup()
	m.PointerDown(pt(150, 150))
	m.PointerDown(pt(10, 10))
	if m.State() != Dragging {
		t.Errorf("Second press must not replace the active gesture, got %s", m.State())
	}
	m.PointerMove(pt(160, 150))
	if h.positions["img"] != pt(110, 100) {
		t.Errorf("Expected drag to continue, got %+v", h.positions["img"])
	}
}
