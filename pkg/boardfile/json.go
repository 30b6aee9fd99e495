package boardfile

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// jsonDocument is the wire shape. Fields that changed across versions are
// kept raw so the loader can check for presence.
type jsonDocument struct {
	Version            json.RawMessage     `json:"version"`
	AnalyzedImages     []jsonImage         `json:"analyzedImages"`
	Connections        map[string][]string `json:"connections"`
	Nodes              []jsonNode          `json:"nodes"`
	Items              []jsonItem          `json:"items,omitempty"`
	ItemConnections    map[string][]string `json:"itemConnections,omitempty"`
	ProductConnections map[string][]string `json:"productConnections,omitempty"`
	OutputCards        []jsonOutputCard    `json:"outputCards,omitempty"`
	Settings           *Settings           `json:"settings,omitempty"`
}

type jsonResult struct {
	Analysis json.RawMessage `json:"analysis"`
}

type jsonImage struct {
	ID       string                 `json:"id"`
	Base64   string                 `json:"base64"`
	MimeType string                 `json:"mimeType"`
	Results  map[string]*jsonResult `json:"results"`
	Position *canvas.Point          `json:"position,omitempty"`
}

type jsonNode struct {
	ID          string             `json:"id"`
	Name        json.RawMessage    `json:"name"`
	IsOutput    bool               `json:"isOutput"`
	Position    *canvas.Point      `json:"position,omitempty"`
	OutputState *graph.OutputState `json:"outputState,omitempty"`
	ContextData *graph.ContextData `json:"contextData,omitempty"`
}

type jsonItem struct {
	ID            string                     `json:"id"`
	RawData       map[string]json.RawMessage `json:"rawData"`
	Data          map[string]json.RawMessage `json:"data,omitempty"` // before version 10
	AnalyzedData  *graph.ItemAnalysis        `json:"analyzedData"`
	IsAnalyzing   bool                       `json:"isAnalyzing"`
	AnalysisError *string                    `json:"analysisError"`
	Position      *canvas.Point              `json:"position,omitempty"`
}

type jsonOutputCard struct {
	ID           string        `json:"id"`
	Prompt       string        `json:"prompt"`
	Type         string        `json:"type"`
	Position     *canvas.Point `json:"position,omitempty"`
	SourceNodeID string        `json:"sourceNodeId"`
}

// Parse decodes and migrates a document. On any error no graph is
// returned, so callers can keep their current state untouched.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	var j jsonDocument
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, &ParseError{Err: err}
	}
	version, err := checkVersion(j.Version)
	if err != nil {
		return nil, err
	}

	g := graph.New()
	for i, ji := range j.AnalyzedImages {
		img := &graph.Image{
			ID:       ji.ID,
			Base64:   ji.Base64,
			MimeType: ji.MimeType,
			Position: positionOr(ji.Position, i),
			Results:  make(map[string]*graph.NodeAnalysis),
		}
		for nodeID, r := range ji.Results {
			if r == nil {
				continue
			}
			img.Results[nodeID] = &graph.NodeAnalysis{Analysis: nullToNil(r.Analysis)}
		}
		g.Images = append(g.Images, img)
	}

	for i, jn := range j.Nodes {
		name := coerceString(jn.Name)
		n := &graph.Node{
			ID:       jn.ID,
			Name:     name,
			Kind:     graph.ResolveKind(name, jn.IsOutput),
			Position: positionOr(jn.Position, i),
			Output:   jn.OutputState,
			Context:  jn.ContextData,
		}
		if n.Output != nil {
			n.Output.IsLoading = false
		}
		g.InsertNode(n)
	}

	for i, jit := range j.Items {
		raw := jit.RawData
		if raw == nil {
			raw = jit.Data
		}
		it := &graph.Item{
			ID:       jit.ID,
			RawData:  make(map[string]string, len(raw)),
			Analyzed: jit.AnalyzedData,
			Position: positionOr(jit.Position, i),
		}
		for k, v := range raw {
			it.RawData[k] = coerceString(v)
		}
		if jit.AnalysisError != nil {
			it.AnalysisError = *jit.AnalysisError
		}
		g.Items = append(g.Items, it)
	}

	for i, jc := range j.OutputCards {
		g.Cards = append(g.Cards, &graph.OutputCard{
			ID:       jc.ID,
			Prompt:   jc.Prompt,
			Type:     graph.CardType(jc.Type),
			Position: positionOr(jc.Position, i),
			Source:   graph.NodeRef{ID: jc.SourceNodeID},
		})
	}

	for _, target := range sortedKeys(j.Connections) {
		for _, src := range j.Connections[target] {
			g.Connect(target, src)
		}
	}
	itemConns := j.ProductConnections
	if itemConns == nil {
		itemConns = j.ItemConnections
	}
	for _, itemID := range sortedKeys(itemConns) {
		for _, nodeID := range itemConns[itemID] {
			g.ConnectNodeToItem(itemID, nodeID)
		}
	}

	return &Document{Version: version, Graph: g, Settings: j.Settings}, nil
}

// Marshal encodes doc at CurrentVersion. Transient loading and error
// state of image results is dropped; item analysis errors are kept.
func Marshal(doc *Document, pretty bool) ([]byte, error) {
	g := doc.Graph
	if g == nil {
		g = graph.New()
	}
	j := jsonDocument{
		Version:         json.RawMessage(strconv.Itoa(CurrentVersion)),
		AnalyzedImages:  make([]jsonImage, 0, len(g.Images)),
		Connections:     g.Edges.NodeConnections(),
		Nodes:           make([]jsonNode, 0, len(g.Nodes)),
		Items:           make([]jsonItem, 0, len(g.Items)),
		ItemConnections: g.Edges.ItemConnections(),
		OutputCards:     make([]jsonOutputCard, 0, len(g.Cards)),
		Settings:        doc.Settings,
	}

	for _, img := range g.Images {
		ji := jsonImage{
			ID:       img.ID,
			Base64:   img.Base64,
			MimeType: img.MimeType,
			Results:  make(map[string]*jsonResult, len(img.Results)),
			Position: pointPtr(img.Position),
		}
		for nodeID, r := range img.Results {
			if r == nil {
				continue
			}
			analysis := r.Analysis
			if analysis == nil {
				analysis = json.RawMessage("null")
			}
			ji.Results[nodeID] = &jsonResult{Analysis: analysis}
		}
		j.AnalyzedImages = append(j.AnalyzedImages, ji)
	}

	for _, n := range g.Nodes {
		name, err := json.Marshal(n.Name)
		if err != nil {
			return nil, err
		}
		jn := jsonNode{
			ID:       n.ID,
			Name:     name,
			IsOutput: n.IsOutput(),
			Position: pointPtr(n.Position),
		}
		if n.Output != nil {
			jn.OutputState = &graph.OutputState{Mode: n.Output.Mode}
		}
		if n.Context != nil {
			jn.ContextData = &graph.ContextData{Text: n.Context.Text}
		}
		j.Nodes = append(j.Nodes, jn)
	}

	for _, it := range g.Items {
		jit := jsonItem{
			ID:           it.ID,
			RawData:      make(map[string]json.RawMessage, len(it.RawData)),
			AnalyzedData: it.Analyzed,
			Position:     pointPtr(it.Position),
		}
		for k, v := range it.RawData {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			jit.RawData[k] = b
		}
		if it.AnalysisError != "" {
			e := it.AnalysisError
			jit.AnalysisError = &e
		}
		j.Items = append(j.Items, jit)
	}

	for _, c := range g.Cards {
		j.OutputCards = append(j.OutputCards, jsonOutputCard{
			ID:           c.ID,
			Prompt:       c.Prompt,
			Type:         string(c.Type),
			Position:     pointPtr(c.Position),
			SourceNodeID: c.Source.ID,
		})
	}

	if pretty {
		return json.MarshalIndent(j, "", "  ")
	}
	return json.Marshal(j)
}

// checkVersion accepts integer versions in [MinVersion, MaxVersion].
func checkVersion(raw json.RawMessage) (int, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, &VersionError{Raw: "unknown"}
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, &VersionError{Raw: text}
	}
	if f != math.Trunc(f) || f < MinVersion || f > MaxVersion {
		return 0, &VersionError{Raw: text}
	}
	return int(f), nil
}

// coerceString turns any JSON value into a display string. Missing,
// null, false, 0 and "" all become empty.
func coerceString(raw json.RawMessage) string {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" || text == "false" {
		return ""
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == 0 {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return "true"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return text
	}
	return buf.String()
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	return raw
}

func positionOr(p *canvas.Point, index int) canvas.Point {
	if p != nil {
		return *p
	}
	x, y := FallbackPosition(index)
	return canvas.Point{X: x, Y: y}
}

func pointPtr(p canvas.Point) *canvas.Point {
	return &p
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
