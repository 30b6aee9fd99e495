package board

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// Style is the visual variant of a card.
type Style int

const (
	StyleImage Style = iota
	StyleConcept
	StyleMoodboard
	StyleContext
	StyleOutput
	StyleItem
	StylePositive
	StyleNegative
	StyleConsolidated
)

// Entry is one laid-out card in canvas space.
type Entry struct {
	Ref    graph.EntityRef
	Style  Style
	Title  string
	Lines  []string
	Bounds canvas.Rect
	Shape  Shape
	Image  *graph.Image // set for image cards
}

// PortPoints returns the canvas-space centres of the entry's ports.
func (e Entry) PortPoints() []canvas.Point {
	pts := make([]canvas.Point, len(e.Shape.Ports))
	for i, p := range e.Shape.Ports {
		pts[i] = canvas.Point{X: e.Bounds.X + p.FX*e.Bounds.W, Y: e.Bounds.Y + p.FY*e.Bounds.H}
	}
	return pts
}

// ControlRect is the remove button area in canvas space.
func (e Entry) ControlRect() canvas.Rect {
	return canvas.Rect{X: e.Bounds.X + e.Bounds.W - ControlSize, Y: e.Bounds.Y, W: ControlSize, H: ControlSize}
}

// EdgeKind distinguishes the three drawn edge families.
type EdgeKind int

const (
	EdgeFeed   EdgeKind = iota // into a node
	EdgeItem                   // node into item
	EdgeOutput                 // output node to a generated card
)

// DrawEdge is a routed edge ready for drawing.
type DrawEdge struct {
	Kind     EdgeKind
	From, To graph.EntityRef
	Path     canvas.Path
}

// Scene is everything a renderer needs, in canvas space.
type Scene struct {
	Entries []Entry
	Edges   []DrawEdge
}

// Bounds returns the union of all cards.
func (s Scene) Bounds() (canvas.Rect, bool) {
	return EntriesBounds(s.Entries)
}

// buildEntries lays out every entity of g. Draw order is images, items,
// output cards, then nodes on top.
func buildEntries(g *graph.Graph) []Entry {
	entries := make([]Entry, 0, len(g.Images)+len(g.Items)+len(g.Cards)+len(g.Nodes))
	nodeNames := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		nodeNames[n.ID] = n.Name
	}

	for _, img := range g.Images {
		e := entry(graph.EntityRef{Kind: graph.EntityImage, ID: img.ID}, StyleImage, ImageShape, img.Position)
		e.Title = img.MimeType
		e.Image = img
		for _, nodeID := range sortedResultKeys(img) {
			name := nodeNames[nodeID]
			if name == "" {
				continue
			}
			e.Lines = append(e.Lines, resultLine(name, img.Results[nodeID]))
		}
		entries = append(entries, e)
	}

	for i, it := range g.Items {
		e := entry(graph.EntityRef{Kind: graph.EntityItem, ID: it.ID}, StyleItem, ItemShape, it.Position)
		e.Title = it.DisplayName(fmt.Sprintf("Item %d", i+1))
		switch {
		case it.IsAnalyzing:
			e.Lines = []string{"analyzing..."}
		case it.AnalysisError != "":
			e.Lines = []string{"error: " + it.AnalysisError}
		case it.Analyzed != nil && len(it.Analyzed.Keywords) > 0:
			e.Lines = []string{strings.Join(it.Analyzed.Keywords, ", ")}
		}
		entries = append(entries, e)
	}

	for _, c := range g.Cards {
		style, title := StyleConsolidated, "Generated Prompt"
		switch c.Type {
		case graph.CardPositive:
			style, title = StylePositive, "Positive Prompt"
		case graph.CardNegative:
			style, title = StyleNegative, "Negative Prompt"
		}
		e := entry(graph.EntityRef{Kind: graph.EntityOutputCard, ID: c.ID}, style, CardShape, c.Position)
		e.Title = title
		e.Lines = []string{c.Prompt}
		entries = append(entries, e)
	}

	for _, n := range g.Nodes {
		style := StyleConcept
		switch {
		case n.IsOutput():
			style = StyleOutput
		case n.IsContext():
			style = StyleContext
		case n.IsMoodboard():
			style = StyleMoodboard
		}
		e := entry(graph.EntityRef{Kind: graph.EntityNode, ID: n.ID}, style, ShapeOfNode(n), n.Position)
		e.Title = n.Name
		count := g.ConnectionCountOf(n.ID)
		switch n.Kind {
		case graph.KindOutput:
			e.Lines = []string{string(n.Output.Mode), fmt.Sprintf("%d connected", count)}
			if n.Output.IsLoading {
				e.Lines = append(e.Lines, "generating...")
			}
		case graph.KindContext:
			e.Lines = []string{n.Context.Text}
		default:
			e.Lines = []string{fmt.Sprintf("%d connected", count)}
		}
		entries = append(entries, e)
	}
	return entries
}

func entry(ref graph.EntityRef, style Style, shape Shape, pos canvas.Point) Entry {
	return Entry{
		Ref:    ref,
		Style:  style,
		Shape:  shape,
		Bounds: canvas.Rect{X: pos.X, Y: pos.Y, W: shape.W, H: shape.H},
	}
}

// routeEdges routes every edge and card back-reference, skipping any
// whose endpoints are not laid out.
func routeEdges(g *graph.Graph, l *Layout) []DrawEdge {
	var out []DrawEdge
	for _, e := range g.Edges.All() {
		kind := EdgeFeed
		if e.IntoItem() {
			kind = EdgeItem
		}
		if p, ok := canvas.RouteEdge(l, l.vp, e.Source.ID, e.Target.ID); ok {
			out = append(out, DrawEdge{Kind: kind, From: e.Source, To: e.Target, Path: p})
		}
	}
	for _, c := range g.Cards {
		n, ok := g.ResolveNode(c.Source)
		if !ok {
			continue
		}
		if p, ok := canvas.RouteEdge(l, l.vp, n.ID, c.ID); ok {
			out = append(out, DrawEdge{
				Kind: EdgeOutput,
				From: graph.EntityRef{Kind: graph.EntityNode, ID: n.ID},
				To:   graph.EntityRef{Kind: graph.EntityOutputCard, ID: c.ID},
				Path: p,
			})
		}
	}
	return out
}

func resultLine(concept string, r *graph.NodeAnalysis) string {
	switch {
	case r == nil:
		return concept + ": -"
	case r.IsLoading:
		return concept + ": analyzing..."
	case r.Error != "":
		return concept + ": error: " + r.Error
	}
	return concept + ": " + analysis.DecodeConcept(r.Analysis).Summary()
}

func sortedResultKeys(img *graph.Image) []string {
	keys := make([]string, 0, len(img.Results))
	for k := range img.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
