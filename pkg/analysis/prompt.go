package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// Synthesis prompt limits.
const (
	MaxDescLength       = 80
	MaxItemsPerCategory = 5
	MaxDescriptions     = 2
)

// ConceptPrompt returns the instruction for analysing an image under a
// concept.
func ConceptPrompt(concept string) string {
	switch concept {
	case ConceptColorPalette:
		return `Analyze this image and extract a color palette of 5-7 colors. Provide the output strictly as a JSON object that follows this exact schema: {"colors":[{"hex":"string","name":"string"}]}`
	case ConceptStyle:
		return `Analyze this image and identify 2-4 artistic or photographic styles. Provide the output strictly as a JSON object that follows this exact schema: {"styles":["string"]}`
	case ConceptTexture:
		return `Analyze this image and identify 2-4 prominent textures. Provide the output strictly as a JSON object that follows this exact schema: {"textures":["string"]}`
	}
	return fmt.Sprintf(`Analyze this image focusing on the concept of "%s". Provide a detailed description. Provide the output strictly as a JSON object that follows this exact schema: {"description":"string"}`, concept)
}

// RowPrompt returns the instruction for extracting keywords from a row.
func RowPrompt(row map[string]string) string {
	data, _ := json.Marshal(row)
	return `You are an expert product analyst. Analyze the following product data and extract a concise list of 5-7 key descriptive keywords or short phrases that capture its essence. Focus on visual and thematic attributes. Crucially, if you find any information regarding the item's size, dimensions, or scale (e.g., "large", "50cm x 30cm", "compact"), you must include it in the keywords. Provide the output strictly as a JSON object that follows this exact schema: {"keywords":["string"]}. Data: ` + string(data)
}

const (
	systemBase = `You are an expert AI prompt engineer. Your task is to synthesize a final, detailed AI image generation prompt based on a combination of overall concepts and specific product details.`

	systemDouble = ` Your task is to create a "positive" prompt (what to include) and a "negative" prompt (what to avoid) for a Stable Diffusion model. Provide the output strictly as a JSON object that follows this exact schema: {"positivePrompt":"string", "negativePrompt":"string"}.`

	consolidatedInstruction = "\nNow, combine all these elements into a single, masterful, and detailed prompt paragraph describing a new, specific scene or product shot that cohesively represents all the inputs. If multiple items are listed, create a single scene that features them together."

	doubleInstruction = "\nBased on these elements, generate a detailed positive prompt and a concise negative prompt. The positive prompt should be a rich, descriptive paragraph for a single cohesive scene. The negative prompt should list undesirable elements like \"blurry, ugly, deformed, text, watermark, bad art, extra limbs\"."
)

// SynthesisPrompt builds the system and user messages for an output
// node.
func SynthesisPrompt(in SynthesisInput) (system, user string) {
	system = systemBase
	var b strings.Builder
	b.WriteString("Synthesize a prompt based on the following elements:\n")

	if in.Context != "" {
		fmt.Fprintf(&b, "\n**Primary Goal & Theme:** The user has provided the following guidance, which should be the main driver for the final prompt: \"%s\"\n", in.Context)
	}

	hasGlobal := hasAny(in.Global)
	if hasGlobal {
		b.WriteString("\n**Overall Moodboard Concepts (apply to all items unless specified otherwise):**\n")
		writeConcepts(&b, in.Global, "- ", conceptLabels{
			colors:     "General Colors",
			styles:     "General Styles",
			textures:   "General Textures",
			materials:  "General Materials inspired by",
			aesthetics: "General Aesthetics inspired by",
		})
	}

	if len(in.Items) > 0 {
		b.WriteString("\n**Specific Product Details:**\n")
		for i, info := range in.Items {
			it := info.Item
			if it == nil {
				it = &graph.Item{}
			}
			fallback := fmt.Sprintf("Item %d", i+1)
			name := firstNonEmpty(it.RawData["Name"], it.RawData["Product"], fallback)

			var keywords string
			if it.Analyzed != nil {
				keywords = strings.Join(it.Analyzed.Keywords, ", ")
			}
			if keywords != "" {
				fmt.Fprintf(&b, "\n--- Item: %s ---\n", name)
				fmt.Fprintf(&b, "  - Key Characteristics: %s\n", keywords)
			} else {
				fmt.Fprintf(&b, "\n--- %s: %s ---\n", fallback, rawDetails(it.RawData))
			}

			if len(info.Inspirations) > 0 {
				b.WriteString("  This item should also be specifically influenced by:\n")
				writeConcepts(&b, info.Inspirations, "  - ", conceptLabels{
					colors:     "Colors",
					styles:     "Styles",
					textures:   "Textures",
					materials:  "Materials",
					aesthetics: "Aesthetics",
				})
			} else if hasGlobal {
				b.WriteString("  This item should follow the overall moodboard concepts.\n")
			}
		}
		b.WriteString("\n--- End of Items ---\n")
	}

	if in.Mode == graph.ModeDoubleOutput {
		system += systemDouble
		b.WriteString(doubleInstruction)
	} else {
		b.WriteString(consolidatedInstruction)
	}
	return system, b.String()
}

type conceptLabels struct {
	colors, styles, textures, materials, aesthetics string
}

func writeConcepts(b *strings.Builder, results map[string][]json.RawMessage, prefix string, l conceptLabels) {
	if list := colorNames(results[ConceptColorPalette]); list != "" {
		fmt.Fprintf(b, "%s%s: %s\n", prefix, l.colors, list)
	}
	if list := uniqueList(results[ConceptStyle], func(r ConceptResult) []string { return r.Styles }); list != "" {
		fmt.Fprintf(b, "%s%s: %s\n", prefix, l.styles, list)
	}
	if list := uniqueList(results[ConceptTexture], func(r ConceptResult) []string { return r.Textures }); list != "" {
		fmt.Fprintf(b, "%s%s: %s\n", prefix, l.textures, list)
	}
	if list := descriptions(results[ConceptMaterial]); list != "" {
		fmt.Fprintf(b, "%s%s: %s\n", prefix, l.materials, list)
	}
	if list := descriptions(results[ConceptAesthetic]); list != "" {
		fmt.Fprintf(b, "%s%s: %s\n", prefix, l.aesthetics, list)
	}
}

func colorNames(results []json.RawMessage) string {
	return uniqueList(results, func(r ConceptResult) []string {
		names := make([]string, 0, len(r.Colors))
		for _, c := range r.Colors {
			names = append(names, c.Name)
		}
		return names
	})
}

// uniqueList flattens results, keeps first occurrences and caps the list.
func uniqueList(results []json.RawMessage, pick func(ConceptResult) []string) string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range results {
		for _, s := range pick(DecodeConcept(raw)) {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	if len(out) > MaxItemsPerCategory {
		out = out[:MaxItemsPerCategory]
	}
	return joinComma(out)
}

func descriptions(results []json.RawMessage) string {
	var out []string
	for _, raw := range results {
		d := DecodeConcept(raw).Description
		if d == "" {
			continue
		}
		out = append(out, `"`+truncate(d)+`"`)
		if len(out) == MaxDescriptions {
			break
		}
	}
	return strings.Join(out, "; ")
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > MaxDescLength {
		return string(r[:MaxDescLength]) + "..."
	}
	return s
}

func rawDetails(raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + raw[k]
	}
	return joinComma(parts)
}

func hasAny(m map[string][]json.RawMessage) bool {
	for _, v := range m {
		if len(v) > 0 {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func joinComma(s []string) string { return strings.Join(s, ", ") }
