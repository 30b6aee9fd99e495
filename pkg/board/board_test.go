package board

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
	"github.com/ha1tch/moodcanvas/pkg/interact"
)

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) AnalyzeImage(ctx context.Context, img analysis.Image, concept string) (json.RawMessage, error) {
	args := m.Called(ctx, img, concept)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

func (m *MockAnalyzer) AnalyzeRow(ctx context.Context, row map[string]string) (*graph.ItemAnalysis, error) {
	args := m.Called(ctx, row)
	res, _ := args.Get(0).(*graph.ItemAnalysis)
	return res, args.Error(1)
}

func (m *MockAnalyzer) Synthesize(ctx context.Context, in analysis.SynthesisInput) (*analysis.Synthesis, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*analysis.Synthesis)
	return res, args.Error(1)
}

type fixture struct {
	b      *Board
	img    *graph.Image
	style  *graph.Node
	ctx    *graph.Node
	out    *graph.Node
	item   *graph.Item
	mockAn *MockAnalyzer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := new(MockAnalyzer)
	b := New(WithAnalyzer(m))
	f := &fixture{b: b, mockAn: m}
	f.img = b.AddImage("AAAA", "image/png", canvas.Point{X: 100, Y: 100})
	var err error
	f.style, err = b.AddNode("Style", canvas.Point{X: 600, Y: 100})
	require.NoError(t, err)
	f.ctx, err = b.AddNode("Context", canvas.Point{X: 600, Y: 400})
	require.NoError(t, err)
	f.out = b.AddOutputNode(canvas.Point{X: 1000, Y: 100})
	f.item = b.AddItems([]map[string]string{{"Name": "Lamp"}}, canvas.Point{X: 100, Y: 600})[0]
	return f
}

func TestLinkRules(t *testing.T) {
	f := newFixture(t)
	card := func() string {
		var id string
		f.b.Update(func(g *graph.Graph) error {
			id = g.AddOutputCard("p", graph.CardConsolidated, graph.NodeRef{ID: f.out.ID}, canvas.Point{}).ID
			return nil
		})
		return id
	}()

	tests := []struct {
		name    string
		from    string
		to      string
		added   bool
		wantErr error
	}{
		{"image into concept", f.img.ID, f.style.ID, true, nil},
		{"concept into output", f.style.ID, f.out.ID, true, nil},
		{"item into output", f.item.ID, f.out.ID, true, nil},
		{"node into item", f.style.ID, f.item.ID, true, nil},
		{"duplicate", f.img.ID, f.style.ID, false, nil},
		{"self", f.style.ID, f.style.ID, false, ErrSelfConnection},
		{"image into item", f.img.ID, f.item.ID, false, ErrIncompatible},
		{"item into item", f.item.ID, f.item.ID, false, ErrSelfConnection},
		{"into image", f.style.ID, f.img.ID, false, ErrNotAcceptor},
		{"into card", f.style.ID, card, false, ErrNotAcceptor},
		{"card into node", card, f.style.ID, false, ErrIncompatible},
		{"missing source", "nope", f.style.ID, false, graph.ErrNotFound},
		{"missing target", f.img.ID, "nope", false, graph.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			added, err := f.b.Link(tc.from, tc.to)
			assert.Equal(t, tc.added, added)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	f.b.View(func(g *graph.Graph) {
		assert.Equal(t, []string{f.img.ID}, g.ConnectedSourcesOf(f.style.ID))
		assert.Equal(t, 2, g.ConnectionCountOf(f.out.ID))
		assert.Equal(t, []string{f.style.ID}, g.ConnectedSourcesOf(f.item.ID))
	})
}

func TestRemoveCascades(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	mustLink(t, f.b, f.style.ID, f.out.ID)
	mustLink(t, f.b, f.style.ID, f.item.ID)
	mustLink(t, f.b, f.ctx.ID, f.out.ID)

	var cardID string
	f.b.Update(func(g *graph.Graph) error {
		cardID = g.AddOutputCard("p", graph.CardConsolidated, graph.NodeRef{ID: f.out.ID}, canvas.Point{}).ID
		return nil
	})

	require.NoError(t, f.b.RemoveNode(f.style.ID))
	f.b.View(func(g *graph.Graph) {
		assert.Equal(t, 1, g.Edges.Len(), "only context→output should remain")
		assert.Empty(t, g.Dangling())
	})

	require.NoError(t, f.b.Remove(f.out.ID))
	f.b.View(func(g *graph.Graph) {
		assert.Equal(t, 0, g.Edges.Len())
		_, ok := g.Card(cardID)
		assert.True(t, ok, "card outlives its output node")
		require.Len(t, g.Dangling(), 1)
		assert.Equal(t, "missing_output_node", g.Dangling()[0].Reason)
	})
	for _, e := range f.b.Edges() {
		assert.NotEqual(t, cardID, e.To.ID, "card with a removed source draws no edge")
	}

	assert.ErrorIs(t, f.b.Remove(f.out.ID), graph.ErrNotFound)
	assert.ErrorIs(t, f.b.RemoveImage(f.item.ID), graph.ErrNotFound, "kind must match")
	assert.NoError(t, f.b.RemoveItem(f.item.ID))
	assert.NoError(t, f.b.RemoveOutputCard(cardID))
}

func TestAnalyzeImageStoresResult(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	raw := json.RawMessage(`{"styles":["boho"]}`)
	f.mockAn.On("AnalyzeImage", mock.Anything, analysis.Image{Base64: "AAAA", MimeType: "image/png"}, "Style").
		Return(raw, nil).Once()

	require.NoError(t, f.b.AnalyzeImage(context.Background(), f.img.ID, f.style.ID))
	f.b.View(func(g *graph.Graph) {
		img, _ := g.Image(f.img.ID)
		r := img.Result(f.style.ID)
		require.NotNil(t, r)
		assert.False(t, r.IsLoading)
		assert.JSONEq(t, string(raw), string(r.Analysis))
	})
	f.mockAn.AssertExpectations(t)
}

func TestAnalyzeImageFailureIsStored(t *testing.T) {
	f := newFixture(t)
	f.mockAn.On("AnalyzeImage", mock.Anything, mock.Anything, "Style").
		Return(nil, errors.New("model offline")).Once()

	err := f.b.AnalyzeImage(context.Background(), f.img.ID, f.style.ID)
	require.Error(t, err)
	f.b.View(func(g *graph.Graph) {
		img, _ := g.Image(f.img.ID)
		r := img.Result(f.style.ID)
		require.NotNil(t, r)
		assert.Equal(t, "model offline", r.Error)
		assert.Nil(t, r.Analysis)
	})
}

func TestAnalyzeImageRemovedMidFlight(t *testing.T) {
	f := newFixture(t)
	f.mockAn.On("AnalyzeImage", mock.Anything, mock.Anything, "Style").
		Run(func(mock.Arguments) {
			assert.NoError(t, f.b.RemoveImage(f.img.ID))
		}).
		Return(json.RawMessage(`{"styles":[]}`), nil).Once()

	require.NoError(t, f.b.AnalyzeImage(context.Background(), f.img.ID, f.style.ID))
	f.b.View(func(g *graph.Graph) {
		_, ok := g.Image(f.img.ID)
		assert.False(t, ok)
	})
}

func TestAnalyzeImageRejectsNonConcept(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.b.AnalyzeImage(context.Background(), f.img.ID, f.out.ID), ErrNotAnalyzable)
	assert.ErrorIs(t, f.b.AnalyzeImage(context.Background(), "nope", f.style.ID), graph.ErrNotFound)
	f.mockAn.AssertNotCalled(t, "AnalyzeImage", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeItem(t *testing.T) {
	f := newFixture(t)
	f.mockAn.On("AnalyzeRow", mock.Anything, map[string]string{"Name": "Lamp"}).
		Return(&graph.ItemAnalysis{Keywords: []string{"brass", "tall"}}, nil).Once()

	require.NoError(t, f.b.AnalyzeItem(context.Background(), f.item.ID))
	f.b.View(func(g *graph.Graph) {
		it, _ := g.Item(f.item.ID)
		assert.False(t, it.IsAnalyzing)
		require.NotNil(t, it.Analyzed)
		assert.Equal(t, []string{"brass", "tall"}, it.Analyzed.Keywords)
	})
}

func TestAnalyzePending(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	mustLink(t, f.b, f.img.ID, f.ctx.ID) // context nodes are not analyzed
	assert.Equal(t, 2, f.b.PendingCount())

	f.mockAn.On("AnalyzeImage", mock.Anything, mock.Anything, "Style").
		Return(json.RawMessage(`{"styles":["a"]}`), nil).Once()
	f.mockAn.On("AnalyzeRow", mock.Anything, mock.Anything).
		Return(nil, errors.New("bad row")).Once()

	err := f.b.AnalyzePending(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad row")
	f.mockAn.AssertExpectations(t)

	// the failed item is retried, the analyzed image is not
	assert.Equal(t, 1, f.b.PendingCount())
}

func TestAnalyzePendingBoundedAndJoined(t *testing.T) {
	m := new(MockAnalyzer)
	b := New(WithAnalyzer(m), WithConcurrency(2))
	style, err := b.AddNode("Style", canvas.Point{X: 600, Y: 100})
	require.NoError(t, err)
	const n = 6
	for i := 0; i < n; i++ {
		img := b.AddImage("AAAA", "image/png", canvas.Point{X: 100, Y: float64(100 + 300*i)})
		mustLink(t, b, img.ID, style.ID)
	}
	require.Equal(t, n, b.PendingCount())

	var inFlight, peak atomic.Int32
	m.On("AnalyzeImage", mock.Anything, mock.Anything, "Style").
		Run(func(mock.Arguments) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)
		}).
		Return(nil, errors.New("model offline")).Times(n)

	err = b.AnalyzePending(context.Background())
	require.Error(t, err)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok, "errors are joined")
	assert.Len(t, joined.Unwrap(), n, "a failure does not stop the rest")
	assert.LessOrEqual(t, peak.Load(), int32(2))
	m.AssertExpectations(t)

	b.View(func(g *graph.Graph) {
		for _, img := range g.Images {
			r := img.Result(style.ID)
			require.NotNil(t, r)
			assert.Equal(t, "model offline", r.Error)
		}
	})
}

func TestNoAnalyzer(t *testing.T) {
	b := New()
	assert.ErrorIs(t, b.AnalyzePending(context.Background()), analysis.ErrNoAnalyzer)
	_, err := b.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, analysis.ErrNoAnalyzer)
}

func TestGenerateGating(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.b.CanGenerate(f.out.ID), "no connections yet")
	_, err := f.b.Generate(context.Background(), f.out.ID)
	assert.ErrorIs(t, err, ErrNothingConnected)

	_, err = f.b.Generate(context.Background(), f.style.ID)
	assert.ErrorIs(t, err, graph.ErrNotOutput)

	mustLink(t, f.b, f.style.ID, f.out.ID)
	assert.True(t, f.b.CanGenerate(f.out.ID))

	f.b.Update(func(g *graph.Graph) error {
		g.SetOutputLoading(f.out.ID, true)
		return nil
	})
	assert.False(t, f.b.CanGenerate(f.out.ID), "generation in flight")
}

func TestGenerateConsolidated(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	mustLink(t, f.b, f.style.ID, f.out.ID)
	mustLink(t, f.b, f.ctx.ID, f.out.ID)
	require.NoError(t, f.b.SetContextText(f.ctx.ID, "  cosy reading nook "))
	f.b.Update(func(g *graph.Graph) error {
		g.SetImageResult(f.img.ID, f.style.ID, json.RawMessage(`{"styles":["boho"]}`), "")
		return nil
	})

	f.mockAn.On("Synthesize", mock.Anything, mock.MatchedBy(func(in analysis.SynthesisInput) bool {
		return in.Mode == graph.ModeConsolidated &&
			in.Context == "cosy reading nook" &&
			len(in.Global["Style"]) == 1
	})).Return(&analysis.Synthesis{Consolidated: "a cosy boho nook"}, nil).Twice()

	cards, err := f.b.Generate(context.Background(), f.out.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, graph.CardConsolidated, cards[0].Type)
	assert.Equal(t, "a cosy boho nook", cards[0].Prompt)
	assert.Equal(t, f.out.ID, cards[0].Source.ID)
	assert.Equal(t, canvas.Point{X: 1000 + OutputShape.W + cardGapX, Y: 100}, cards[0].Position)

	// a second run stacks below the first
	cards2, err := f.b.Generate(context.Background(), f.out.ID)
	require.NoError(t, err)
	assert.Equal(t, 100+CardShape.H+cardGapY, cards2[0].Position.Y)
	assert.True(t, f.b.CanGenerate(f.out.ID), "loading flag cleared")
	f.mockAn.AssertExpectations(t)
}

func TestGenerateDoubleOutput(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.item.ID, f.out.ID)
	require.NoError(t, f.b.SetOutputMode(f.out.ID, graph.ModeDoubleOutput))

	f.mockAn.On("Synthesize", mock.Anything, mock.MatchedBy(func(in analysis.SynthesisInput) bool {
		return in.Mode == graph.ModeDoubleOutput && len(in.Items) == 1 && in.Items[0].Item.RawData["Name"] == "Lamp"
	})).Return(&analysis.Synthesis{Positive: "pos", Negative: "neg"}, nil).Once()

	cards, err := f.b.Generate(context.Background(), f.out.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, graph.CardPositive, cards[0].Type)
	assert.Equal(t, graph.CardNegative, cards[1].Type)
	assert.Greater(t, cards[1].Position.Y, cards[0].Position.Y)
}

func TestGenerateFailureClearsLoading(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.style.ID, f.out.ID)
	f.mockAn.On("Synthesize", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	_, err := f.b.Generate(context.Background(), f.out.ID)
	require.Error(t, err)
	assert.True(t, f.b.CanGenerate(f.out.ID))
	f.b.View(func(g *graph.Graph) {
		assert.Empty(t, g.Cards)
	})
}

func TestGenerateOutputRemovedMidFlight(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.style.ID, f.out.ID)
	f.mockAn.On("Synthesize", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			assert.NoError(t, f.b.RemoveNode(f.out.ID))
		}).
		Return(&analysis.Synthesis{Consolidated: "x"}, nil).Once()

	cards, err := f.b.Generate(context.Background(), f.out.ID)
	require.NoError(t, err)
	assert.Empty(t, cards)
	f.b.View(func(g *graph.Graph) {
		assert.Empty(t, g.Cards)
	})
}

func TestBuildSynthesisInputItemInspirations(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	mustLink(t, f.b, f.style.ID, f.item.ID)
	mustLink(t, f.b, f.item.ID, f.out.ID)
	mustLink(t, f.b, f.img.ID, f.out.ID)
	f.b.Update(func(g *graph.Graph) error {
		g.SetImageResult(f.img.ID, f.style.ID, json.RawMessage(`{"styles":["deco"]}`), "")
		return nil
	})

	var in analysis.SynthesisInput
	f.b.View(func(g *graph.Graph) {
		in = buildSynthesisInput(g, f.out.ID)
	})
	require.Len(t, in.Items, 1)
	assert.Len(t, in.Items[0].Inspirations["Style"], 1)
	assert.Len(t, in.Global["Style"], 1, "image fed directly adds its results")
	assert.Empty(t, in.Context)
}

func TestBoardDrivesMachine(t *testing.T) {
	f := newFixture(t)
	sched := &interact.ManualScheduler{}
	m := interact.NewMachine(f.b.Viewport(), f.b, sched, interact.Options{})

	// drag the image body
	m.PointerDown(canvas.Point{X: 200, Y: 200})
	require.Equal(t, interact.Dragging, m.State())
	m.PointerMove(canvas.Point{X: 250, Y: 260})
	m.PointerUp(canvas.Point{X: 250, Y: 260})
	pos, ok := f.b.Position(f.img.ID)
	require.True(t, ok)
	assert.Equal(t, canvas.Point{X: 150, Y: 160}, pos)

	// image is now at (150,160); its right port sits at (406,270)
	m.PointerDown(canvas.Point{X: 406, Y: 270})
	require.Equal(t, interact.Connecting, m.State())
	m.PointerMove(canvas.Point{X: 640, Y: 150})
	m.PointerUp(canvas.Point{X: 650, Y: 150})
	f.b.View(func(g *graph.Graph) {
		assert.True(t, g.Edges.Has(f.style.ID, f.img.ID))
	})

	// a release on an image is rejected by the acceptor
	m.PointerDown(canvas.Point{X: 406, Y: 270})
	m.PointerUp(canvas.Point{X: 250, Y: 250})
	f.b.View(func(g *graph.Graph) {
		assert.Equal(t, 1, g.Edges.Len())
	})

	// background pans
	m.PointerDown(canvas.Point{X: 900, Y: 700})
	require.Equal(t, interact.Panning, m.State())
	m.PointerMove(canvas.Point{X: 910, Y: 690})
	m.PointerUp(canvas.Point{X: 910, Y: 690})
	assert.Equal(t, canvas.Point{X: 10, Y: -10}, f.b.Viewport().Pan)
}

func TestAreaSelectedCallback(t *testing.T) {
	var got []canvas.Rect
	b := New(OnAreaSelected(func(r canvas.Rect) { got = append(got, r) }))
	m := interact.NewMachine(b.Viewport(), b, &interact.ManualScheduler{}, interact.Options{})
	m.SetSelectMode(true)
	m.PointerDown(canvas.Point{X: 300, Y: 300})
	m.PointerMove(canvas.Point{X: 400, Y: 350})
	m.PointerUp(canvas.Point{X: 400, Y: 350})
	require.Len(t, got, 1)
	assert.Equal(t, canvas.Rect{X: 300, Y: 300, W: 100, H: 50}, got[0])
}

func TestOnChange(t *testing.T) {
	calls := 0
	b := New(OnChange(func() { calls++ }))
	img := b.AddImage("AAAA", "image/png", canvas.Point{})
	b.SetPosition(img.ID, canvas.Point{X: 5})
	assert.Equal(t, 2, calls)
	b.SetPosition("nope", canvas.Point{})
	assert.Equal(t, 2, calls, "failed updates do not notify")
}

func TestSnapshotSaveOpen(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	mustLink(t, f.b, f.style.ID, f.item.ID)

	snap := f.b.Snapshot()
	f.b.SetPosition(f.img.ID, canvas.Point{X: 9, Y: 9})
	img, _ := snap.Graph.Image(f.img.ID)
	assert.Equal(t, canvas.Point{X: 100, Y: 100}, img.Position, "snapshot is a copy")

	path := filepath.Join(t.TempDir(), "board.json")
	require.NoError(t, f.b.Save(path))
	b2, err := Open(path)
	require.NoError(t, err)
	b2.View(func(g *graph.Graph) {
		assert.Len(t, g.Images, 1)
		assert.Len(t, g.Nodes, 3)
		assert.Len(t, g.Items, 1)
		assert.Equal(t, 2, g.Edges.Len())
	})
	pos, _ := b2.Position(f.img.ID)
	assert.Equal(t, canvas.Point{X: 9, Y: 9}, pos)
}

func TestSceneEdges(t *testing.T) {
	f := newFixture(t)
	mustLink(t, f.b, f.img.ID, f.style.ID)
	mustLink(t, f.b, f.style.ID, f.item.ID)
	f.b.Update(func(g *graph.Graph) error {
		g.AddOutputCard("p", graph.CardPositive, graph.NodeRef{ID: f.out.ID}, canvas.Point{X: 1400, Y: 100})
		return nil
	})

	s := f.b.Scene()
	assert.Len(t, s.Entries, 6)
	require.Len(t, s.Edges, 3)
	kinds := map[EdgeKind]int{}
	for _, e := range s.Edges {
		kinds[e.Kind]++
	}
	assert.Equal(t, map[EdgeKind]int{EdgeFeed: 1, EdgeItem: 1, EdgeOutput: 1}, kinds)

	// nodes draw above everything else
	assert.Equal(t, graph.EntityNode, s.Entries[len(s.Entries)-1].Ref.Kind)

	// edges are stored in canvas space, so zoom does not move them
	f.b.Viewport().SetZoom(2)
	s2 := f.b.Scene()
	for i := range s.Edges {
		assert.InDelta(t, s.Edges[i].Path.From.X, s2.Edges[i].Path.From.X, 1e-9)
		assert.InDelta(t, s.Edges[i].Path.To.Y, s2.Edges[i].Path.To.Y, 1e-9)
	}
}

func mustLink(t *testing.T, b *Board, from, to string) {
	t.Helper()
	_, err := b.Link(from, to)
	require.NoError(t, err)
}
