// Package render exports a region of a board scene as PNG or SVG.
//
// Both renderers take the scene in canvas space and a canvas-space region,
// normally the rectangle emitted by an export selection.
package render

import (
	"errors"
	"image/color"
	"math"

	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
)

// ErrEmptyRegion is returned for a region with no area, or for a scene
// with nothing to export when no region is given.
var ErrEmptyRegion = errors.New("nothing to render: empty region")

// ErrTooLarge is returned when the supersampled raster would exceed MaxPixels.
var ErrTooLarge = errors.New("exceeds the pixel limit")

// Options configures rendering.
type Options struct {
	Scale    float64 // output pixels per canvas unit
	Padding  float64 // canvas units added around the default region
	FontSize int     // base font size at scale 1
	Title    string
}

// DefaultOptions returns sensible defaults for rendering.
func DefaultOptions() Options {
	return Options{
		Scale:    1,
		Padding:  40,
		FontSize: 14,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Scale <= 0 {
		o.Scale = d.Scale
	}
	if o.Padding < 0 {
		o.Padding = d.Padding
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	return o
}

// Region picks the export rectangle: sel when given, otherwise the bounds
// of every card grown by padding.
func Region(s board.Scene, sel *canvas.Rect, padding float64) (canvas.Rect, error) {
	if sel != nil {
		if sel.W <= 0 || sel.H <= 0 {
			return canvas.Rect{}, ErrEmptyRegion
		}
		return *sel, nil
	}
	r, ok := s.Bounds()
	if !ok {
		return canvas.Rect{}, ErrEmptyRegion
	}
	return r.Inset(padding), nil
}

// outputSize is the pixel size of region at scale.
func outputSize(region canvas.Rect, scale float64) (int, int) {
	return int(math.Ceil(region.W * scale)), int(math.Ceil(region.H * scale))
}

// style is the fill, border and title colours of a card.
type style struct {
	fill, border, title color.RGBA
	fillHex, borderHex  string
}

func rgb(hex uint32) color.RGBA {
	return color.RGBA{uint8(hex >> 16), uint8(hex >> 8), uint8(hex), 255}
}

func newStyle(fill, border uint32) style {
	return style{
		fill:      rgb(fill),
		border:    rgb(border),
		title:     rgb(border),
		fillHex:   hexOf(fill),
		borderHex: hexOf(border),
	}
}

func hexOf(v uint32) string {
	const digits = "0123456789abcdef"
	b := []byte("#000000")
	for i := 6; i > 0; i-- {
		b[i] = digits[v&0xf]
		v >>= 4
	}
	return string(b)
}

var styles = map[board.Style]style{
	board.StyleImage:        newStyle(0xffffff, 0x616161),
	board.StyleConcept:      newStyle(0xe3f2fd, 0x1565c0),
	board.StyleMoodboard:    newStyle(0xf3e5f5, 0x6a1b9a),
	board.StyleContext:      newStyle(0xfff8e1, 0xf57f17),
	board.StyleOutput:       newStyle(0xe8f5e9, 0x2e7d32),
	board.StyleItem:         newStyle(0xfafafa, 0x455a64),
	board.StylePositive:     newStyle(0xe8f5e9, 0x2e7d32),
	board.StyleNegative:     newStyle(0xffebee, 0xc62828),
	board.StyleConsolidated: newStyle(0xede7f6, 0x4527a0),
}

func styleOf(s board.Style) style {
	if st, ok := styles[s]; ok {
		return st
	}
	return styles[board.StyleConcept]
}

var (
	colorWhite = rgb(0xf7f7f7)
	colorText  = rgb(0x333333)
	colorMuted = rgb(0x666666)
)

var edgeColors = map[board.EdgeKind]uint32{
	board.EdgeFeed:   0x666666,
	board.EdgeItem:   0x6a1b9a,
	board.EdgeOutput: 0x2e7d32,
}

// Card text layout in canvas units.
const (
	titleHeight  = 28
	textInset    = 10
	lineHeight   = 18
	imageInsetY  = titleHeight + 4
	imageCaption = 40 // room kept under an image card's picture for results
)
