// Package board orchestrates a moodboard canvas: it owns the graph and
// viewport, applies connection acceptance rules, cascades removals into
// the edge set, lays entities out for routing and hit testing, and runs
// analysis and prompt generation against an analysis.Analyzer.
//
// Board methods are safe for concurrent use. The viewport is not: it
// belongs to the goroutine that drives interaction.
package board

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/boardfile"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
	"github.com/ha1tch/moodcanvas/pkg/interact"
)

// Connection rule violations.
var (
	ErrSelfConnection = errors.New("cannot connect an entity to itself")
	ErrNotAcceptor    = errors.New("target does not accept connections")
	ErrIncompatible   = errors.New("source cannot connect to this target")
)

// Board is a live canvas.
type Board struct {
	mu       sync.Mutex
	g        *graph.Graph
	settings *boardfile.Settings
	vp       *canvas.Viewport

	analyzer    analysis.Analyzer
	concurrency int
	log         *zap.Logger

	onSelect func(canvas.Rect)
	onChange func()
}

// Option configures a Board.
type Option func(*Board)

// WithAnalyzer sets the analysis collaborator.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(b *Board) {
		b.analyzer = a
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(b *Board) {
		if l != nil {
			b.log = l
		}
	}
}

// WithViewport replaces the default 1280x800 viewport.
func WithViewport(vp *canvas.Viewport) Option {
	return func(b *Board) {
		if vp != nil {
			b.vp = vp
		}
	}
}

// WithConcurrency caps the number of analyses AnalyzePending runs at once.
func WithConcurrency(n int) Option {
	return func(b *Board) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// OnAreaSelected registers the receiver of export-selection rectangles.
func OnAreaSelected(fn func(canvas.Rect)) Option {
	return func(b *Board) {
		b.onSelect = fn
	}
}

// OnChange registers a callback run after every mutation, including
// asynchronous analysis write-backs. It runs without the board lock held.
func OnChange(fn func()) Option {
	return func(b *Board) {
		b.onChange = fn
	}
}

// DefaultConcurrency is the default AnalyzePending parallelism.
const DefaultConcurrency = 4

// New returns an empty board.
func New(opts ...Option) *Board {
	b := &Board{
		g:           graph.New(),
		vp:          canvas.NewViewport(1280, 800),
		concurrency: DefaultConcurrency,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open reads a board file.
func Open(path string, opts ...Option) (*Board, error) {
	doc, err := boardfile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b := New(opts...)
	b.Load(doc)
	return b, nil
}

// Viewport returns the board's viewport.
func (b *Board) Viewport() *canvas.Viewport { return b.vp }

// Load replaces the board contents with doc. The graph is taken over, not
// copied. The viewport zoom is reset.
func (b *Board) Load(doc *boardfile.Document) {
	b.mu.Lock()
	g := doc.Graph
	if g == nil {
		g = graph.New()
	}
	b.g = g
	b.settings = doc.Settings
	b.mu.Unlock()
	b.vp.ResetZoom()
	b.changed()
}

// Reset clears the board.
func (b *Board) Reset() {
	b.mu.Lock()
	b.g.Reset()
	b.mu.Unlock()
	b.vp.ResetZoom()
	b.vp.Pan = canvas.Point{}
	b.changed()
}

// Snapshot returns a document holding a deep copy of the board.
func (b *Board) Snapshot() *boardfile.Document {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc := &boardfile.Document{Version: boardfile.CurrentVersion, Graph: b.g.Clone()}
	if b.settings != nil {
		s := *b.settings
		doc.Settings = &s
	}
	return doc
}

// Save writes the board to path.
func (b *Board) Save(path string) error {
	return boardfile.WriteFile(path, b.Snapshot())
}

// SetSettings sets the analysis settings saved with the board.
func (b *Board) SetSettings(s *boardfile.Settings) {
	b.mu.Lock()
	b.settings = s
	b.mu.Unlock()
}

// View runs fn with the graph under the board lock. fn must not retain g.
func (b *Board) View(fn func(g *graph.Graph)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.g)
}

// Update runs fn with the graph under the board lock and reports a change
// when fn succeeds.
func (b *Board) Update(fn func(g *graph.Graph) error) error {
	b.mu.Lock()
	err := fn(b.g)
	b.mu.Unlock()
	if err == nil {
		b.changed()
	}
	return err
}

func (b *Board) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

// AddImage places an image card.
func (b *Board) AddImage(base64, mimeType string, pos canvas.Point) *graph.Image {
	b.mu.Lock()
	img := b.g.AddImage(base64, mimeType, pos)
	b.mu.Unlock()
	b.changed()
	return img
}

// AddNode places a concept or context node after validating its name.
func (b *Board) AddNode(name string, pos canvas.Point) (*graph.Node, error) {
	b.mu.Lock()
	n, err := b.g.AddNode(name, pos)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b.changed()
	return n, nil
}

// AddOutputNode places an output node.
func (b *Board) AddOutputNode(pos canvas.Point) *graph.Node {
	b.mu.Lock()
	n := b.g.AddOutputNode(pos)
	b.mu.Unlock()
	b.changed()
	return n
}

// AddItems places imported rows in a cascading grid starting at origin.
func (b *Board) AddItems(rows []map[string]string, origin canvas.Point) []*graph.Item {
	b.mu.Lock()
	items := make([]*graph.Item, 0, len(rows))
	base := len(b.g.Items)
	for i, row := range rows {
		x, y := boardfile.FallbackPosition(base + i)
		items = append(items, b.g.AddItem(row, origin.Add(canvas.Point{X: x, Y: y})))
	}
	b.mu.Unlock()
	b.changed()
	return items
}

// Remove deletes any entity by id and drops every edge that touches it.
// Output cards sourced by a removed node are kept.
func (b *Board) Remove(id string) error {
	b.mu.Lock()
	ref, ok := b.g.Resolve(id)
	removed := false
	if ok {
		switch ref.Kind {
		case graph.EntityImage:
			removed = b.g.RemoveImage(id)
		case graph.EntityNode:
			removed = b.g.RemoveNode(id)
		case graph.EntityItem:
			removed = b.g.RemoveItem(id)
		case graph.EntityOutputCard:
			removed = b.g.RemoveCard(id)
		}
	}
	var dropped int
	if removed {
		dropped = b.g.Edges.RemoveEntity(id)
	}
	b.mu.Unlock()
	if !removed {
		return fmt.Errorf("%w: %s", graph.ErrNotFound, id)
	}
	b.log.Debug("entity removed", zap.String("id", id), zap.Stringer("kind", ref.Kind), zap.Int("edges", dropped))
	b.changed()
	return nil
}

// RemoveImage deletes an image and its edges.
func (b *Board) RemoveImage(id string) error { return b.removeKind(id, graph.EntityImage) }

// RemoveNode deletes a node and its edges.
func (b *Board) RemoveNode(id string) error { return b.removeKind(id, graph.EntityNode) }

// RemoveItem deletes an item and its edges.
func (b *Board) RemoveItem(id string) error { return b.removeKind(id, graph.EntityItem) }

// RemoveOutputCard deletes a generated card.
func (b *Board) RemoveOutputCard(id string) error { return b.removeKind(id, graph.EntityOutputCard) }

func (b *Board) removeKind(id string, kind graph.EntityKind) error {
	b.mu.Lock()
	ref, ok := b.g.Resolve(id)
	b.mu.Unlock()
	if !ok || ref.Kind != kind {
		return fmt.Errorf("%w: %s %s", graph.ErrNotFound, kind, id)
	}
	return b.Remove(id)
}

// Link connects source (the gesture start) into target (the acceptor).
// Nodes accept images, nodes and items. Items accept only nodes. Images
// and output cards accept nothing. It returns false when the edge already
// existed.
func (b *Board) Link(sourceID, targetID string) (bool, error) {
	b.mu.Lock()
	added, err := b.link(sourceID, targetID)
	b.mu.Unlock()
	if added {
		b.changed()
	}
	return added, err
}

func (b *Board) link(sourceID, targetID string) (bool, error) {
	if sourceID == targetID {
		return false, ErrSelfConnection
	}
	src, ok := b.g.Resolve(sourceID)
	if !ok {
		return false, fmt.Errorf("%w: %s", graph.ErrNotFound, sourceID)
	}
	dst, ok := b.g.Resolve(targetID)
	if !ok {
		return false, fmt.Errorf("%w: %s", graph.ErrNotFound, targetID)
	}
	switch dst.Kind {
	case graph.EntityNode:
		switch src.Kind {
		case graph.EntityImage, graph.EntityNode, graph.EntityItem:
			return b.g.Connect(targetID, sourceID), nil
		}
	case graph.EntityItem:
		if src.Kind == graph.EntityNode {
			return b.g.ConnectNodeToItem(targetID, sourceID), nil
		}
	default:
		return false, fmt.Errorf("%w: %s %s", ErrNotAcceptor, dst.Kind, targetID)
	}
	return false, fmt.Errorf("%w: %s into %s", ErrIncompatible, src.Kind, dst.Kind)
}

// Unlink removes source→target.
func (b *Board) Unlink(sourceID, targetID string) bool {
	b.mu.Lock()
	ok := b.g.Disconnect(targetID, sourceID)
	b.mu.Unlock()
	if ok {
		b.changed()
	}
	return ok
}

// SetOutputMode switches an output node between consolidated and
// double-output synthesis.
func (b *Board) SetOutputMode(nodeID string, mode graph.OutputMode) error {
	return b.Update(func(g *graph.Graph) error {
		return g.SetOutputMode(nodeID, mode)
	})
}

// SetContextText sets a context node's guidance text.
func (b *Board) SetContextText(nodeID, text string) error {
	return b.Update(func(g *graph.Graph) error {
		return g.SetContextText(nodeID, text)
	})
}

// Layout returns a layout registry for the current positions and viewport.
func (b *Board) Layout() *Layout {
	b.mu.Lock()
	defer b.mu.Unlock()
	return NewLayout(buildEntries(b.g), b.vp)
}

// Scene lays out every entity and routes every drawable edge.
func (b *Board) Scene() Scene {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := buildEntries(b.g)
	l := NewLayout(entries, b.vp)
	return Scene{Entries: entries, Edges: routeEdges(b.g, l)}
}

// Edges returns every drawable edge with its routed path.
func (b *Board) Edges() []DrawEdge {
	return b.Scene().Edges
}

var _ interact.Host = (*Board)(nil)

// HitTest implements interact.Host.
func (b *Board) HitTest(p canvas.Point) interact.Hit {
	return b.Layout().HitTest(p)
}

// Position implements interact.Host.
func (b *Board) Position(id string) (canvas.Point, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.g.Position(id)
}

// SetPosition implements interact.Host.
func (b *Board) SetPosition(id string, p canvas.Point) bool {
	b.mu.Lock()
	ok := b.g.SetPosition(id, p)
	b.mu.Unlock()
	if ok {
		b.changed()
	}
	return ok
}

// Connect implements interact.Host. Rejections are not errors to a
// gesture; they are logged and dropped.
func (b *Board) Connect(from, to graph.EntityRef) bool {
	added, err := b.Link(from.ID, to.ID)
	if err != nil {
		b.log.Debug("connection rejected", zap.String("from", from.ID), zap.String("to", to.ID), zap.Error(err))
	}
	return added
}

// AreaSelected implements interact.Host.
func (b *Board) AreaSelected(r canvas.Rect) {
	if b.onSelect != nil {
		b.onSelect(r)
	}
}
