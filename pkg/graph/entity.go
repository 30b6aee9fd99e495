// Package graph provides the canvas entity model: images, nodes, tabular
// items and output cards with free-form positions, plus the directed
// connections between them.
package graph

import (
	"encoding/json"
	"strings"

	"github.com/ha1tch/moodcanvas/pkg/canvas"
)

// EntityKind identifies which table an entity lives in.
type EntityKind int

const (
	EntityUnknown EntityKind = iota // id did not resolve when the edge was made
	EntityImage
	EntityNode
	EntityItem
	EntityOutputCard
)

func (k EntityKind) String() string {
	switch k {
	case EntityImage:
		return "image"
	case EntityNode:
		return "node"
	case EntityItem:
		return "item"
	case EntityOutputCard:
		return "output-card"
	}
	return "unknown"
}

// EntityRef is a typed entity id.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// Kind is the behavioural variant of a Node.
type Kind int

const (
	KindConcept Kind = iota // analysis dimension (Style, Texture, ...)
	KindContext             // free-text guidance for synthesis
	KindOutput              // aggregates sources and triggers synthesis
)

func (k Kind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindOutput:
		return "output"
	}
	return "concept"
}

// Reserved node names.
const (
	ContextName   = "Context"
	MoodboardName = "Moodboard"
	OutputName    = "Output"
)

// DefaultConceptNames lists the built-in concept nodes.
var DefaultConceptNames = []string{"Color Palette", "Style", "Texture", "Material", "Aesthetic", "Moodboard"}

// OutputMode selects what an output node synthesizes.
type OutputMode string

const (
	ModeConsolidated OutputMode = "consolidated"
	ModeDoubleOutput OutputMode = "double-output"
)

// Valid reports whether m is a known mode.
func (m OutputMode) Valid() bool {
	return m == ModeConsolidated || m == ModeDoubleOutput
}

// OutputState is the payload of an output node.
type OutputState struct {
	Mode      OutputMode `json:"mode"`
	IsLoading bool       `json:"isLoading"`
}

// ContextData is the payload of a context node.
type ContextData struct {
	Text string `json:"text"`
}

// NodeAnalysis is one image's analysis for one concept node.
type NodeAnalysis struct {
	Analysis  json.RawMessage // nil until a result arrives
	IsLoading bool
	Error     string // empty when there is no error
}

// Image is an uploaded image card.
type Image struct {
	ID       string
	Base64   string
	MimeType string
	Position canvas.Point
	Results  map[string]*NodeAnalysis // keyed by node id
}

// DataURL reconstructs the image's data URL. It is never persisted.
func (img *Image) DataURL() string {
	return "data:" + img.MimeType + ";base64," + img.Base64
}

// Result returns the analysis entry for a node, or nil.
func (img *Image) Result(nodeID string) *NodeAnalysis {
	if img.Results == nil {
		return nil
	}
	return img.Results[nodeID]
}

// Node is a graph node. Output is non-nil iff Kind is KindOutput and
// Context is non-nil iff Kind is KindContext.
type Node struct {
	ID       string
	Name     string
	Kind     Kind
	Position canvas.Point
	Output   *OutputState
	Context  *ContextData
}

// IsOutput reports whether n is an output node.
func (n *Node) IsOutput() bool { return n.Kind == KindOutput }

// IsContext reports whether n is a context node.
func (n *Node) IsContext() bool { return n.Kind == KindContext }

// IsConcept reports whether n is a concept node.
func (n *Node) IsConcept() bool { return n.Kind == KindConcept }

// IsMoodboard reports whether n is the Moodboard concept. Cosmetic only.
func (n *Node) IsMoodboard() bool { return n.Kind == KindConcept && n.Name == MoodboardName }

// ResolveKind picks the node kind from the legacy discriminators.
func ResolveKind(name string, isOutput bool) Kind {
	switch {
	case isOutput:
		return KindOutput
	case name == ContextName:
		return KindContext
	}
	return KindConcept
}

// newNode builds a node whose payload matches its kind.
func newNode(id, name string, kind Kind, pos canvas.Point) *Node {
	n := &Node{ID: id, Name: name, Kind: kind, Position: pos}
	switch kind {
	case KindOutput:
		n.Output = &OutputState{Mode: ModeConsolidated}
	case KindContext:
		n.Context = &ContextData{}
	}
	return n
}

// ItemAnalysis is the collaborator's result for a tabular row.
type ItemAnalysis struct {
	Keywords []string `json:"keywords"`
}

// Item is one imported tabular row.
type Item struct {
	ID            string
	RawData       map[string]string
	Analyzed      *ItemAnalysis
	IsAnalyzing   bool
	AnalysisError string
	Position      canvas.Point
}

// DisplayName returns the row's Name or Product field, or fallback.
func (it *Item) DisplayName(fallback string) string {
	for _, key := range []string{"Name", "Product"} {
		if v := strings.TrimSpace(it.RawData[key]); v != "" {
			return v
		}
	}
	return fallback
}

// CardType is the flavour of a generated prompt.
type CardType string

const (
	CardPositive     CardType = "positive"
	CardNegative     CardType = "negative"
	CardConsolidated CardType = "consolidated"
)

// NodeRef is a weak reference to a node. It may outlive the node; resolve
// it with Graph.ResolveNode and handle the absent case.
type NodeRef struct {
	ID string
}

// OutputCard is a generated prompt placed on the canvas.
type OutputCard struct {
	ID       string
	Prompt   string
	Type     CardType
	Position canvas.Point
	Source   NodeRef // the output node that produced it
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	cp := *it
	cp.RawData = make(map[string]string, len(it.RawData))
	for k, v := range it.RawData {
		cp.RawData[k] = v
	}
	if it.Analyzed != nil {
		cp.Analyzed = &ItemAnalysis{Keywords: append([]string(nil), it.Analyzed.Keywords...)}
	}
	return &cp
}
