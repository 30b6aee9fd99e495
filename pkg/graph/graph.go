package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ha1tch/moodcanvas/pkg/canvas"
)

// Validation errors.
var (
	ErrEmptyName     = errors.New("node name cannot be empty")
	ErrDuplicateName = errors.New("a node with this name already exists")
	ErrNotFound      = errors.New("entity not found")
	ErrNotOutput     = errors.New("node is not an output node")
	ErrNotContext    = errors.New("node is not a context node")
	ErrInvalidMode   = errors.New("invalid output mode")
)

// Graph is the full canvas model. Entity slices keep creation order,
// which is also render and save order.
type Graph struct {
	Images []*Image
	Nodes  []*Node
	Items  []*Item
	Cards  []*OutputCard
	Edges  *EdgeSet

	// NewID generates entity ids; replaced in tests for determinism.
	NewID func(prefix string) string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		Images: make([]*Image, 0),
		Nodes:  make([]*Node, 0),
		Items:  make([]*Item, 0),
		Cards:  make([]*OutputCard, 0),
		Edges:  NewEdgeSet(),
		NewID:  defaultID,
	}
}

func defaultID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func (g *Graph) id(prefix string) string {
	if g.NewID == nil {
		return defaultID(prefix)
	}
	return g.NewID(prefix)
}

// Reset removes every entity and connection.
func (g *Graph) Reset() {
	g.Images = g.Images[:0]
	g.Nodes = g.Nodes[:0]
	g.Items = g.Items[:0]
	g.Cards = g.Cards[:0]
	g.Edges = NewEdgeSet()
}

// IsEmpty reports whether there is nothing to show.
func (g *Graph) IsEmpty() bool {
	return len(g.Images) == 0 && len(g.Nodes) == 0 && len(g.Items) == 0
}

// ---- creation ----

// AddImage adds an image card.
func (g *Graph) AddImage(base64, mimeType string, pos canvas.Point) *Image {
	img := &Image{
		ID:       g.id("img"),
		Base64:   base64,
		MimeType: mimeType,
		Position: pos,
		Results:  make(map[string]*NodeAnalysis),
	}
	g.Images = append(g.Images, img)
	return img
}

// ValidateNodeName trims name and checks it against existing node names,
// case-insensitively. It returns the trimmed name.
func (g *Graph) ValidateNodeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyName
	}
	for _, n := range g.Nodes {
		if strings.EqualFold(n.Name, trimmed) {
			return "", fmt.Errorf("%w: %q", ErrDuplicateName, trimmed)
		}
	}
	return trimmed, nil
}

// AddNode validates name and adds a node. The literal name "Context"
// creates a context node; any other name creates a concept node.
func (g *Graph) AddNode(name string, pos canvas.Point) (*Node, error) {
	trimmed, err := g.ValidateNodeName(name)
	if err != nil {
		return nil, err
	}
	n := newNode(g.id("node"), trimmed, ResolveKind(trimmed, false), pos)
	g.Nodes = append(g.Nodes, n)
	return n, nil
}

// AddContextNode adds the context node.
func (g *Graph) AddContextNode(pos canvas.Point) (*Node, error) {
	return g.AddNode(ContextName, pos)
}

// AddOutputNode adds an output node named "Output", "Output 2", ... so
// that names stay unique.
func (g *Graph) AddOutputNode(pos canvas.Point) *Node {
	name := OutputName
	for i := 2; ; i++ {
		if _, err := g.ValidateNodeName(name); err == nil {
			break
		}
		name = fmt.Sprintf("%s %d", OutputName, i)
	}
	n := newNode(g.id("node"), name, KindOutput, pos)
	g.Nodes = append(g.Nodes, n)
	return n
}

// InsertNode adds a prebuilt node without validation, normalising its
// payload to match its kind. Used by loaders.
func (g *Graph) InsertNode(n *Node) {
	switch n.Kind {
	case KindOutput:
		if n.Output == nil {
			n.Output = &OutputState{Mode: ModeConsolidated}
		}
		if !n.Output.Mode.Valid() {
			n.Output.Mode = ModeConsolidated
		}
		n.Context = nil
	case KindContext:
		if n.Context == nil {
			n.Context = &ContextData{}
		}
		n.Output = nil
	default:
		n.Output = nil
		n.Context = nil
	}
	g.Nodes = append(g.Nodes, n)
}

// AddItem adds a tabular row card.
func (g *Graph) AddItem(rawData map[string]string, pos canvas.Point) *Item {
	if rawData == nil {
		rawData = make(map[string]string)
	}
	it := &Item{ID: g.id("item"), RawData: rawData, Position: pos}
	g.Items = append(g.Items, it)
	return it
}

// AddOutputCard adds a generated prompt card sourced from an output node.
func (g *Graph) AddOutputCard(prompt string, typ CardType, source NodeRef, pos canvas.Point) *OutputCard {
	c := &OutputCard{
		ID:       g.id("out"),
		Prompt:   prompt,
		Type:     typ,
		Position: pos,
		Source:   source,
	}
	g.Cards = append(g.Cards, c)
	return c
}

// ---- lookup ----

// Image returns the image with the given id.
func (g *Graph) Image(id string) (*Image, bool) {
	for _, img := range g.Images {
		if img.ID == id {
			return img, true
		}
	}
	return nil, false
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Item returns the item with the given id.
func (g *Graph) Item(id string) (*Item, bool) {
	for _, it := range g.Items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Card returns the output card with the given id.
func (g *Graph) Card(id string) (*OutputCard, bool) {
	for _, c := range g.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// ResolveNode follows a weak node reference.
func (g *Graph) ResolveNode(ref NodeRef) (*Node, bool) {
	if ref.ID == "" {
		return nil, false
	}
	return g.Node(ref.ID)
}

// Resolve finds which table id belongs to.
func (g *Graph) Resolve(id string) (EntityRef, bool) {
	if _, ok := g.Image(id); ok {
		return EntityRef{EntityImage, id}, true
	}
	if _, ok := g.Node(id); ok {
		return EntityRef{EntityNode, id}, true
	}
	if _, ok := g.Item(id); ok {
		return EntityRef{EntityItem, id}, true
	}
	if _, ok := g.Card(id); ok {
		return EntityRef{EntityOutputCard, id}, true
	}
	return EntityRef{EntityUnknown, id}, false
}

// Exists reports whether ref names a live entity.
func (g *Graph) Exists(ref EntityRef) bool {
	got, ok := g.Resolve(ref.ID)
	return ok && (ref.Kind == EntityUnknown || got.Kind == ref.Kind)
}

// ---- removal (local only; edge cleanup is the caller's job) ----

// RemoveImage deletes an image. It returns false if it did not exist.
func (g *Graph) RemoveImage(id string) bool {
	for i, img := range g.Images {
		if img.ID == id {
			g.Images = append(g.Images[:i], g.Images[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveNode deletes a node. Output cards that reference it are kept.
func (g *Graph) RemoveNode(id string) bool {
	for i, n := range g.Nodes {
		if n.ID == id {
			g.Nodes = append(g.Nodes[:i], g.Nodes[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveItem deletes an item.
func (g *Graph) RemoveItem(id string) bool {
	for i, it := range g.Items {
		if it.ID == id {
			g.Items = append(g.Items[:i], g.Items[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveCard deletes an output card.
func (g *Graph) RemoveCard(id string) bool {
	for i, c := range g.Cards {
		if c.ID == id {
			g.Cards = append(g.Cards[:i], g.Cards[i+1:]...)
			return true
		}
	}
	return false
}

// ---- positions ----

// Position returns the stored canvas position of any entity.
func (g *Graph) Position(id string) (canvas.Point, bool) {
	if img, ok := g.Image(id); ok {
		return img.Position, true
	}
	if n, ok := g.Node(id); ok {
		return n.Position, true
	}
	if it, ok := g.Item(id); ok {
		return it.Position, true
	}
	if c, ok := g.Card(id); ok {
		return c.Position, true
	}
	return canvas.Point{}, false
}

// SetPosition sets the absolute canvas position of any entity. It returns
// false if the entity does not exist.
func (g *Graph) SetPosition(id string, pos canvas.Point) bool {
	if img, ok := g.Image(id); ok {
		img.Position = pos
		return true
	}
	if n, ok := g.Node(id); ok {
		n.Position = pos
		return true
	}
	if it, ok := g.Item(id); ok {
		it.Position = pos
		return true
	}
	if c, ok := g.Card(id); ok {
		c.Position = pos
		return true
	}
	return false
}

// ---- connections ----

// Connect adds sourceID as a source of the target node. The source kind is
// resolved from the graph; unresolvable ids are kept as EntityUnknown.
// It returns false if the edge already existed.
func (g *Graph) Connect(targetNodeID, sourceID string) bool {
	src, _ := g.Resolve(sourceID)
	return g.Edges.Connect(EntityRef{EntityNode, targetNodeID}, src)
}

// Disconnect removes sourceID from the target's sources.
func (g *Graph) Disconnect(targetID, sourceID string) bool {
	return g.Edges.Disconnect(targetID, sourceID)
}

// ConnectNodeToItem records that nodeID feeds itemID.
func (g *Graph) ConnectNodeToItem(itemID, nodeID string) bool {
	return g.Edges.Connect(EntityRef{EntityItem, itemID}, EntityRef{EntityNode, nodeID})
}

// ConnectedSourcesOf returns the ids feeding target, in order.
func (g *Graph) ConnectedSourcesOf(targetID string) []string {
	return g.Edges.SourcesOf(targetID)
}

// ConnectionCountOf returns the number of sources feeding target.
func (g *Graph) ConnectionCountOf(targetID string) int {
	return g.Edges.CountInto(targetID)
}

// ---- async state ----

// SetImageLoading marks an image's analysis for a node as in flight.
func (g *Graph) SetImageLoading(imageID, nodeID string) bool {
	img, ok := g.Image(imageID)
	if !ok {
		return false
	}
	if img.Results == nil {
		img.Results = make(map[string]*NodeAnalysis)
	}
	prev := img.Results[nodeID]
	na := &NodeAnalysis{IsLoading: true}
	if prev != nil {
		na.Analysis = prev.Analysis
	}
	img.Results[nodeID] = na
	return true
}

// SetImageResult stores a finished analysis (or its error). It is a no-op
// returning false when the image has been removed.
func (g *Graph) SetImageResult(imageID, nodeID string, analysis json.RawMessage, errMsg string) bool {
	img, ok := g.Image(imageID)
	if !ok {
		return false
	}
	if img.Results == nil {
		img.Results = make(map[string]*NodeAnalysis)
	}
	na := &NodeAnalysis{Analysis: analysis, Error: errMsg}
	if errMsg != "" {
		na.Analysis = nil
	}
	img.Results[nodeID] = na
	return true
}

// SetItemAnalyzing marks an item's analysis as in flight.
func (g *Graph) SetItemAnalyzing(itemID string) bool {
	it, ok := g.Item(itemID)
	if !ok {
		return false
	}
	it.IsAnalyzing = true
	it.AnalysisError = ""
	return true
}

// SetItemResult stores a finished item analysis (or its error). No-op when
// the item has been removed.
func (g *Graph) SetItemResult(itemID string, analysis *ItemAnalysis, errMsg string) bool {
	it, ok := g.Item(itemID)
	if !ok {
		return false
	}
	it.IsAnalyzing = false
	it.AnalysisError = errMsg
	if errMsg == "" {
		it.Analyzed = analysis
	}
	return true
}

// SetOutputMode switches an output node between consolidated and
// positive/negative synthesis.
func (g *Graph) SetOutputMode(nodeID string, mode OutputMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	n, ok := g.Node(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}
	if !n.IsOutput() {
		return fmt.Errorf("%w: %s", ErrNotOutput, nodeID)
	}
	n.Output.Mode = mode
	return nil
}

// SetOutputLoading flags an output node's generation as in flight.
func (g *Graph) SetOutputLoading(nodeID string, loading bool) bool {
	n, ok := g.Node(nodeID)
	if !ok || !n.IsOutput() {
		return false
	}
	n.Output.IsLoading = loading
	return true
}

// SetContextText replaces a context node's text.
func (g *Graph) SetContextText(nodeID, text string) error {
	n, ok := g.Node(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}
	if !n.IsContext() {
		return fmt.Errorf("%w: %s", ErrNotContext, nodeID)
	}
	n.Context.Text = text
	return nil
}

// ---- integrity ----

// DanglingRef describes a reference to an entity that no longer exists.
type DanglingRef struct {
	From   string // edge source or output card id
	To     string // edge target or referenced node id
	Reason string // "missing_source", "missing_target", "missing_both", "missing_output_node"
}

// Dangling lists edges and output-card sources that point at missing
// entities. These are tolerated everywhere; this is for reporting.
func (g *Graph) Dangling() []DanglingRef {
	var out []DanglingRef
	for _, e := range g.Edges.All() {
		_, srcOK := g.Resolve(e.Source.ID)
		_, dstOK := g.Resolve(e.Target.ID)
		switch {
		case !srcOK && !dstOK:
			out = append(out, DanglingRef{e.Source.ID, e.Target.ID, "missing_both"})
		case !srcOK:
			out = append(out, DanglingRef{e.Source.ID, e.Target.ID, "missing_source"})
		case !dstOK:
			out = append(out, DanglingRef{e.Source.ID, e.Target.ID, "missing_target"})
		}
	}
	for _, c := range g.Cards {
		if c.Source.ID == "" {
			continue
		}
		if _, ok := g.ResolveNode(c.Source); !ok {
			out = append(out, DanglingRef{c.ID, c.Source.ID, "missing_output_node"})
		}
	}
	return out
}

// Clone returns a deep copy of g. Stored analysis JSON is shared, since
// it is never mutated in place.
func (g *Graph) Clone() *Graph {
	c := New()
	c.NewID = g.NewID
	for _, img := range g.Images {
		cp := *img
		cp.Results = make(map[string]*NodeAnalysis, len(img.Results))
		for k, v := range img.Results {
			if v != nil {
				r := *v
				cp.Results[k] = &r
			}
		}
		c.Images = append(c.Images, &cp)
	}
	for _, n := range g.Nodes {
		cp := *n
		if n.Output != nil {
			o := *n.Output
			cp.Output = &o
		}
		if n.Context != nil {
			x := *n.Context
			cp.Context = &x
		}
		c.Nodes = append(c.Nodes, &cp)
	}
	for _, it := range g.Items {
		c.Items = append(c.Items, it.Clone())
	}
	for _, card := range g.Cards {
		cp := *card
		c.Cards = append(c.Cards, &cp)
	}
	for _, e := range g.Edges.All() {
		c.Edges.Connect(e.Target, e.Source)
	}
	return c
}
