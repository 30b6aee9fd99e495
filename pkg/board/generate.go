package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// Generation errors.
var (
	ErrNothingConnected = errors.New("output node has no connected sources")
	ErrGenerating       = errors.New("generation already in progress")
)

// Card placement relative to the output node.
const (
	cardGapX = 40
	cardGapY = 20
)

// CanGenerate reports whether an output node may start generation: it
// has at least one connection and no generation in flight.
func (b *Board) CanGenerate(outputID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.canGenerate(outputID) == nil
}

func (b *Board) canGenerate(outputID string) error {
	n, ok := b.g.Node(outputID)
	if !ok {
		return fmt.Errorf("%w: %s", graph.ErrNotFound, outputID)
	}
	if !n.IsOutput() {
		return fmt.Errorf("%w: %s", graph.ErrNotOutput, outputID)
	}
	if n.Output.IsLoading {
		return ErrGenerating
	}
	if b.g.ConnectionCountOf(outputID) == 0 {
		return ErrNothingConnected
	}
	return nil
}

// Generate synthesizes a prompt for an output node and places the result
// as one consolidated card, or a positive and negative pair, to the right
// of the node. If the node is removed while the request is in flight, no
// card is created.
func (b *Board) Generate(ctx context.Context, outputID string) ([]*graph.OutputCard, error) {
	if b.analyzer == nil {
		return nil, analysis.ErrNoAnalyzer
	}

	b.mu.Lock()
	if err := b.canGenerate(outputID); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	in := buildSynthesisInput(b.g, outputID)
	b.g.SetOutputLoading(outputID, true)
	b.mu.Unlock()
	b.changed()

	log := b.log.With(zap.String("node_id", outputID), zap.String("mode", string(in.Mode)))
	log.Debug("generation started", zap.Int("items", len(in.Items)), zap.Int("concepts", len(in.Global)))
	start := time.Now()
	syn, err := b.analyzer.Synthesize(ctx, in)

	b.mu.Lock()
	alive := b.g.SetOutputLoading(outputID, false)
	var cards []*graph.OutputCard
	if err == nil && alive {
		cards = b.placeCards(outputID, syn)
	}
	b.mu.Unlock()
	b.changed()

	switch {
	case err != nil:
		log.Warn("generation failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("generating for %s: %w", outputID, err)
	case !alive:
		log.Info("output node removed during generation; result dropped")
		return nil, nil
	}
	log.Info("generation finished", zap.Duration("duration", time.Since(start)), zap.Int("cards", len(cards)))
	return cards, nil
}

// placeCards adds the cards for syn below any cards the node already has.
// Caller holds the lock.
func (b *Board) placeCards(outputID string, syn *analysis.Synthesis) []*graph.OutputCard {
	n, _ := b.g.Node(outputID)
	existing := 0
	for _, c := range b.g.Cards {
		if c.Source.ID == outputID {
			existing++
		}
	}
	step := CardShape.H + cardGapY
	pos := canvas.Point{X: n.Position.X + OutputShape.W + cardGapX, Y: n.Position.Y + float64(existing)*step}
	src := graph.NodeRef{ID: outputID}

	if n.Output.Mode == graph.ModeDoubleOutput {
		pos2 := pos.Add(canvas.Point{Y: step})
		return []*graph.OutputCard{
			b.g.AddOutputCard(syn.Positive, graph.CardPositive, src, pos),
			b.g.AddOutputCard(syn.Negative, graph.CardNegative, src, pos2),
		}
	}
	return []*graph.OutputCard{b.g.AddOutputCard(syn.Consolidated, graph.CardConsolidated, src, pos)}
}

// buildSynthesisInput aggregates what reaches an output node:
//   - a concept source contributes the results of the images feeding it,
//     under the concept's name
//   - an image fed directly contributes all of its results
//   - context sources contribute their text, joined by blank lines
//   - an item source contributes its analysis and the concept results of
//     the nodes feeding the item
//
// Output nodes feeding an output node are skipped.
func buildSynthesisInput(g *graph.Graph, outputID string) analysis.SynthesisInput {
	n, _ := g.Node(outputID)
	in := analysis.SynthesisInput{
		Global: make(map[string][]json.RawMessage),
		Mode:   n.Output.Mode,
	}
	var contexts []string
	for _, srcID := range g.ConnectedSourcesOf(outputID) {
		ref, ok := g.Resolve(srcID)
		if !ok {
			continue
		}
		switch ref.Kind {
		case graph.EntityImage:
			img, _ := g.Image(srcID)
			addImageResults(g, in.Global, img)
		case graph.EntityNode:
			src, _ := g.Node(srcID)
			switch src.Kind {
			case graph.KindContext:
				if t := strings.TrimSpace(src.Context.Text); t != "" {
					contexts = append(contexts, t)
				}
			case graph.KindConcept:
				addConceptResults(g, in.Global, src)
			}
		case graph.EntityItem:
			it, _ := g.Item(srcID)
			info := analysis.ItemInspiration{Item: it.Clone(), Inspirations: make(map[string][]json.RawMessage)}
			for _, nodeID := range g.ConnectedSourcesOf(it.ID) {
				if cn, ok := g.Node(nodeID); ok && cn.IsConcept() {
					addConceptResults(g, info.Inspirations, cn)
				}
			}
			in.Items = append(in.Items, info)
		}
	}
	in.Context = strings.Join(contexts, "\n\n")
	return in
}

// addConceptResults collects the analyses of every image feeding concept
// node n.
func addConceptResults(g *graph.Graph, into map[string][]json.RawMessage, n *graph.Node) {
	for _, srcID := range g.ConnectedSourcesOf(n.ID) {
		img, ok := g.Image(srcID)
		if !ok {
			continue
		}
		if r := img.Result(n.ID); r != nil && r.Analysis != nil {
			into[n.Name] = append(into[n.Name], r.Analysis)
		}
	}
}

// addImageResults collects every stored analysis of img, keyed by the
// name of the concept node it was made for.
func addImageResults(g *graph.Graph, into map[string][]json.RawMessage, img *graph.Image) {
	for _, nodeID := range sortedResultKeys(img) {
		cn, ok := g.Node(nodeID)
		if !ok {
			continue
		}
		if r := img.Results[nodeID]; r != nil && r.Analysis != nil {
			into[cn.Name] = append(into[cn.Name], r.Analysis)
		}
	}
}
