package render

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
)

// approximate glyph width as a fraction of the font size, used to wrap
// text without font metrics
const svgCharWidth = 0.6

// RenderSVG renders region of s as an SVG document. Image cards embed
// their data URLs.
func RenderSVG(s board.Scene, region canvas.Rect, opts Options) (string, error) {
	opts = opts.withDefaults()
	width, height := outputSize(region, opts.Scale)
	if width <= 0 || height <= 0 {
		return "", ErrEmptyRegion
	}

	var sb strings.Builder
	fs := opts.FontSize

	sb.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="%g %g %g %g">
<defs>
`, width, height, region.X, region.Y, region.W, region.H))
	for _, kind := range []board.EdgeKind{board.EdgeFeed, board.EdgeItem, board.EdgeOutput} {
		sb.WriteString(fmt.Sprintf(`  <marker id="arrow-%d" markerWidth="10" markerHeight="7" refX="9" refY="3.5" orient="auto">
    <polygon points="0 0, 10 3.5, 0 7" fill="%s"/>
  </marker>
`, kind, hexOf(edgeColors[kind])))
	}
	sb.WriteString(fmt.Sprintf(`</defs>
<style>
  .card { stroke-width: 2; }
  .card-title { font-family: sans-serif; font-size: %dpx; font-weight: bold; }
  .card-text { font-family: sans-serif; font-size: %dpx; fill: #333; }
  .edge { fill: none; stroke-width: 2; }
  .title { font-family: sans-serif; font-size: %dpx; font-weight: bold; fill: #333; }
</style>
`, fs, fs-2, fs+4))

	sb.WriteString(fmt.Sprintf(`<rect x="%g" y="%g" width="%g" height="%g" fill="#f7f7f7"/>
`, region.X, region.Y, region.W, region.H))

	for _, e := range s.Edges {
		if !region.Intersects(edgeBounds(e.Path)) {
			continue
		}
		sb.WriteString(fmt.Sprintf(`<path d="%s" class="edge" stroke="%s" marker-end="url(#arrow-%d)"/>
`, e.Path.SVG(), hexOf(edgeColors[e.Kind]), e.Kind))
	}

	for _, e := range s.Entries {
		if !region.Intersects(e.Bounds) {
			continue
		}
		writeCardSVG(&sb, e, float64(fs))
	}

	if opts.Title != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%g" y="%g" class="title">%s</text>
`, region.X+10, region.Y+24, html.EscapeString(opts.Title)))
	}

	sb.WriteString("</svg>\n")
	return sb.String(), nil
}

// WriteSVG renders to w.
func WriteSVG(w io.Writer, s board.Scene, region canvas.Rect, opts Options) error {
	out, err := RenderSVG(s, region, opts)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func writeCardSVG(sb *strings.Builder, e board.Entry, fs float64) {
	st := styleOf(e.Style)
	b := e.Bounds
	sb.WriteString(fmt.Sprintf(`<g id="%s">
<rect x="%g" y="%g" width="%g" height="%g" rx="6" class="card" fill="%s" stroke="%s"/>
`, html.EscapeString(e.Ref.ID), b.X, b.Y, b.W, b.H, st.fillHex, st.borderHex))

	maxChars := int((b.W - 2*textInset) / (fs * svgCharWidth))
	sb.WriteString(fmt.Sprintf(`<text x="%g" y="%g" class="card-title" fill="%s">%s</text>
`, b.X+textInset, b.Y+titleHeight*0.65, st.borderHex, html.EscapeString(clip(e.Title, maxChars))))

	bodyTop := b.Y + titleHeight
	if e.Image != nil {
		pic := canvas.Rect{X: b.X + textInset, Y: b.Y + imageInsetY, W: b.W - 2*textInset, H: b.H - imageInsetY - imageCaption}
		sb.WriteString(fmt.Sprintf(`<image x="%g" y="%g" width="%g" height="%g" preserveAspectRatio="xMidYMid meet" href="%s"/>
`, pic.X, pic.Y, pic.W, pic.H, html.EscapeString(e.Image.DataURL())))
		bodyTop = pic.Y + pic.H
	}

	y := bodyTop + lineHeight
	textChars := int((b.W - 2*textInset) / ((fs - 2) * svgCharWidth))
	for _, text := range e.Lines {
		for _, l := range wrapChars(text, textChars) {
			if y > b.Y+b.H-textInset/2 {
				break
			}
			sb.WriteString(fmt.Sprintf(`<text x="%g" y="%g" class="card-text">%s</text>
`, b.X+textInset, y, html.EscapeString(l)))
			y += lineHeight
		}
	}
	sb.WriteString("</g>\n")
}

// clip shortens s to n runes, ending with an ellipsis when cut.
func clip(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// wrapChars breaks text into lines of at most n runes on word boundaries.
func wrapChars(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var cur string
		for _, w := range strings.Fields(para) {
			switch {
			case cur == "":
				cur = clip(w, n)
			case len([]rune(cur))+1+len([]rune(w)) <= n:
				cur += " " + w
			default:
				lines = append(lines, cur)
				cur = clip(w, n)
			}
		}
		if cur != "" {
			lines = append(lines, cur)
		}
	}
	return lines
}
