// Package analysis talks to the model server that turns images and
// tabular rows into structured findings, and synthesizes generation
// prompts from those findings.
package analysis

import (
	"context"
	"encoding/json"

	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// Concept names with a dedicated result shape. Any other concept yields
// a free-text description.
const (
	ConceptColorPalette = "Color Palette"
	ConceptStyle        = "Style"
	ConceptTexture      = "Texture"
	ConceptMaterial     = "Material"
	ConceptAesthetic    = "Aesthetic"
)

// Image is the payload sent for image analysis.
type Image struct {
	Base64   string
	MimeType string
}

// DataURL returns the image as a data URL.
func (img Image) DataURL() string {
	return "data:" + img.MimeType + ";base64," + img.Base64
}

// ItemInspiration is one item feeding an output node, with the concept
// results that reach it through its own incoming nodes.
type ItemInspiration struct {
	Item         *graph.Item
	Inspirations map[string][]json.RawMessage // concept name → results
}

// SynthesisInput is everything an output node aggregates.
type SynthesisInput struct {
	Global  map[string][]json.RawMessage // concept name → results
	Items   []ItemInspiration
	Context string
	Mode    graph.OutputMode
}

// Synthesis is a generated prompt. Consolidated is set in consolidated
// mode; Positive and Negative in double-output mode.
type Synthesis struct {
	Consolidated string
	Positive     string
	Negative     string
}

// Analyzer is the collaborator contract.
type Analyzer interface {
	// AnalyzeImage returns the concept-specific JSON result for an image.
	AnalyzeImage(ctx context.Context, img Image, concept string) (json.RawMessage, error)
	// AnalyzeRow extracts keywords from a tabular row.
	AnalyzeRow(ctx context.Context, row map[string]string) (*graph.ItemAnalysis, error)
	// Synthesize builds a prompt from aggregated results.
	Synthesize(ctx context.Context, in SynthesisInput) (*Synthesis, error)
}

// Color is one palette entry.
type Color struct {
	Hex  string `json:"hex"`
	Name string `json:"name"`
}

// ConceptResult is the union of every concept result shape. Fields that
// the result does not carry are left empty.
type ConceptResult struct {
	Colors      []Color  `json:"colors,omitempty"`
	Styles      []string `json:"styles,omitempty"`
	Textures    []string `json:"textures,omitempty"`
	Description string   `json:"description,omitempty"`
}

// DecodeConcept decodes a stored result, tolerating shapes that do not
// match. Undecodable input yields an empty result.
func DecodeConcept(raw json.RawMessage) ConceptResult {
	var r ConceptResult
	if len(raw) == 0 {
		return r
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		// Fall back to a field-by-field decode so one bad field does not
		// hide the others.
		var loose map[string]json.RawMessage
		if json.Unmarshal(raw, &loose) != nil {
			return ConceptResult{}
		}
		r = ConceptResult{}
		json.Unmarshal(loose["colors"], &r.Colors)
		json.Unmarshal(loose["styles"], &r.Styles)
		json.Unmarshal(loose["textures"], &r.Textures)
		json.Unmarshal(loose["description"], &r.Description)
	}
	return r
}

// Summary renders a result as one short line for listings.
func (r ConceptResult) Summary() string {
	switch {
	case len(r.Colors) > 0:
		names := make([]string, 0, len(r.Colors))
		for _, c := range r.Colors {
			if c.Name != "" {
				names = append(names, c.Name)
			} else {
				names = append(names, c.Hex)
			}
		}
		return joinComma(names)
	case len(r.Styles) > 0:
		return joinComma(r.Styles)
	case len(r.Textures) > 0:
		return joinComma(r.Textures)
	}
	return r.Description
}
