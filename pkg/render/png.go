// Native PNG rendering of a board region.
// Mirrors the SVG renderer output using Go's image packages.

package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// supersample is the internal render multiplier; the result is
// downsampled for smoother lines and text.
const supersample = 4

// MaxPixels caps the raster allocated for one render, supersampling
// included.
const MaxPixels = 64 << 20

// renderContext holds rendering parameters including scale
type renderContext struct {
	img       *image.RGBA
	origin    canvas.Point // canvas point drawn at pixel (0,0)
	scale     float64      // pixels per canvas unit, supersampling included
	lineWidth float64
	face      font.Face
	bold      font.Face
}

func newRenderContext(img *image.RGBA, origin canvas.Point, scale float64, fontSize int) (*renderContext, error) {
	face, err := newFace(goregular.TTF, float64(fontSize)*scale)
	if err != nil {
		return nil, err
	}
	bold, err := newFace(gobold.TTF, float64(fontSize)*scale)
	if err != nil {
		return nil, err
	}
	return &renderContext{
		img:       img,
		origin:    origin,
		scale:     scale,
		lineWidth: scale * 2,
		face:      face,
		bold:      bold,
	}, nil
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	fnt, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}
	return opentype.NewFace(fnt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone, // supersampled instead
	})
}

// px maps a canvas point to supersampled pixels.
func (ctx *renderContext) px(p canvas.Point) (float64, float64) {
	return (p.X - ctx.origin.X) * ctx.scale, (p.Y - ctx.origin.Y) * ctx.scale
}

// pxRect maps a canvas rectangle to supersampled pixels.
func (ctx *renderContext) pxRect(r canvas.Rect) image.Rectangle {
	x0, y0 := ctx.px(r.Min())
	x1, y1 := ctx.px(r.Max())
	return image.Rect(int(x0), int(y0), int(math.Ceil(x1)), int(math.Ceil(y1)))
}

// RenderPNG renders region of s to PNG.
// Uses 4x supersampling for smoother output.
func RenderPNG(w io.Writer, s board.Scene, region canvas.Rect, opts Options) error {
	opts = opts.withDefaults()
	width, height := outputSize(region, opts.Scale)
	if width <= 0 || height <= 0 {
		return ErrEmptyRegion
	}
	if width*height > MaxPixels/(supersample*supersample) {
		return fmt.Errorf("render: %dx%d: %w", width, height, ErrTooLarge)
	}

	large, err := renderPNGInternal(s, region, opts, width*supersample, height*supersample)
	if err != nil {
		return err
	}

	// Downsample to target size using high-quality interpolation
	final := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(final, final.Bounds(), large, large.Bounds(), draw.Over, nil)
	return png.Encode(w, final)
}

func renderPNGInternal(s board.Scene, region canvas.Rect, opts Options, width, height int) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	ctx, err := newRenderContext(img, region.Min(), opts.Scale*supersample, opts.FontSize)
	if err != nil {
		return nil, err
	}

	draw.Draw(img, img.Bounds(), image.NewUniform(colorWhite), image.Point{}, draw.Src)

	// edges under cards
	for _, e := range s.Edges {
		if !region.Intersects(edgeBounds(e.Path)) {
			continue
		}
		x1, y1 := ctx.px(e.Path.From)
		x2, y2 := ctx.px(e.Path.To)
		drawArrowLine(ctx, x1, y1, x2, y2, rgb(edgeColors[e.Kind]))
	}

	for _, e := range s.Entries {
		if !region.Intersects(e.Bounds) {
			continue
		}
		drawCard(ctx, e)
	}

	if opts.Title != "" {
		drawText(ctx, ctx.bold, 10*ctx.scale, 20*ctx.scale, opts.Title, colorText)
	}
	return img, nil
}

func edgeBounds(p canvas.Path) canvas.Rect {
	// a zero-area rect never intersects, so grow straight lines a little
	return canvas.RectFromPoints(p.From, p.To).Inset(1)
}

func drawCard(ctx *renderContext, e board.Entry) {
	st := styleOf(e.Style)
	r := ctx.pxRect(e.Bounds)
	fillRect(ctx, r, st.fill)
	strokeRect(ctx, r, st.border)

	inset := textInset * ctx.scale
	x := float64(r.Min.X) + inset
	maxW := float64(r.Dx()) - 2*inset
	y := float64(r.Min.Y) + titleHeight*ctx.scale*0.65
	drawText(ctx, ctx.bold, x, y, fit(ctx.bold, e.Title, maxW), st.title)

	bodyTop := float64(r.Min.Y) + titleHeight*ctx.scale
	if e.Image != nil {
		pic := image.Rect(r.Min.X+int(inset), r.Min.Y+int(imageInsetY*ctx.scale),
			r.Max.X-int(inset), r.Max.Y-int(imageCaption*ctx.scale))
		if err := drawPicture(ctx, pic, e.Image); err != nil {
			drawText(ctx, ctx.face, x, float64(pic.Min.Y)+lineHeight*ctx.scale, "image unavailable", colorMuted)
		}
		bodyTop = float64(pic.Max.Y)
	}

	line := lineHeight * ctx.scale
	y = bodyTop + line
	for _, text := range e.Lines {
		for _, l := range wrap(ctx.face, text, maxW) {
			if y > float64(r.Max.Y)-inset/2 {
				return
			}
			drawText(ctx, ctx.face, x, y, l, colorText)
			y += line
		}
	}
}

// drawPicture decodes an image card's data and scales it to fit dst,
// keeping its aspect ratio.
func drawPicture(ctx *renderContext, dst image.Rectangle, img *graph.Image) error {
	if dst.Dx() <= 0 || dst.Dy() <= 0 {
		return nil
	}
	src, err := DecodeImage(img)
	if err != nil {
		return err
	}
	sb := src.Bounds()
	if sb.Dx() == 0 || sb.Dy() == 0 {
		return fmt.Errorf("image %s has no pixels", img.ID)
	}
	k := math.Min(float64(dst.Dx())/float64(sb.Dx()), float64(dst.Dy())/float64(sb.Dy()))
	w, h := int(float64(sb.Dx())*k), int(float64(sb.Dy())*k)
	off := image.Pt(dst.Min.X+(dst.Dx()-w)/2, dst.Min.Y+(dst.Dy()-h)/2)
	draw.ApproxBiLinear.Scale(ctx.img, image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}, src, sb, draw.Over, nil)
	return nil
}

// DecodeImage decodes an image card's base64 payload. PNG, JPEG, GIF and
// WebP are supported.
func DecodeImage(img *graph.Image) (image.Image, error) {
	data, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", img.ID, err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", img.ID, err)
	}
	return src, nil
}

func fillRect(ctx *renderContext, r image.Rectangle, c color.Color) {
	draw.Draw(ctx.img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func strokeRect(ctx *renderContext, r image.Rectangle, c color.Color) {
	x0, y0, x1, y1 := float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)
	drawLine(ctx, x0, y0, x1, y0, c)
	drawLine(ctx, x1, y0, x1, y1, c)
	drawLine(ctx, x1, y1, x0, y1, c)
	drawLine(ctx, x0, y1, x0, y0, c)
}

// drawLine draws a line between two points with thickness from context.
func drawLine(ctx *renderContext, x1, y1, x2, y2 float64, c color.Color) {
	img := ctx.img
	halfThick := ctx.lineWidth / 2

	dx := x2 - x1
	dy := y2 - y1
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist < 1 {
		for ty := -halfThick; ty <= halfThick; ty++ {
			for tx := -halfThick; tx <= halfThick; tx++ {
				img.Set(int(x1+tx), int(y1+ty), c)
			}
		}
		return
	}

	steps := math.Max(math.Abs(dx), math.Abs(dy))
	perpX := -dy / dist
	perpY := dx / dist
	for i := 0.0; i <= steps; i++ {
		t := i / steps
		cx := x1 + dx*t
		cy := y1 + dy*t
		for offset := -halfThick; offset <= halfThick; offset += 0.5 {
			img.Set(int(cx+perpX*offset), int(cy+perpY*offset), c)
		}
	}
}

// drawArrowLine draws a line with a filled arrowhead at the end.
func drawArrowLine(ctx *renderContext, x1, y1, x2, y2 float64, c color.Color) {
	drawLine(ctx, x1, y1, x2, y2, c)

	dx := x2 - x1
	dy := y2 - y1
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist < 1 {
		return
	}
	nx := dx / dist
	ny := dy / dist

	arrowLen := 8.0 * ctx.scale
	arrowWidth := 4.0 * ctx.scale
	ax1 := x2 - nx*arrowLen + ny*arrowWidth
	ay1 := y2 - ny*arrowLen - nx*arrowWidth
	ax2 := x2 - nx*arrowLen - ny*arrowWidth
	ay2 := y2 - ny*arrowLen + nx*arrowWidth

	for t := 0.0; t <= 1.0; t += 0.05 {
		mx := ax1 + (ax2-ax1)*t
		my := ay1 + (ay2-ay1)*t
		drawLine(ctx, x2, y2, mx, my, c)
	}
}

// drawText draws text with its baseline at (x, y).
func drawText(ctx *renderContext, face font.Face, x, y float64, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  ctx.img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(int(x)), Y: fixed.I(int(y))},
	}
	d.DrawString(text)
}

// fit shortens text with an ellipsis until it is at most maxW wide.
func fit(face font.Face, text string, maxW float64) string {
	if float64(font.MeasureString(face, text).Ceil()) <= maxW {
		return text
	}
	r := []rune(text)
	for len(r) > 0 {
		r = r[:len(r)-1]
		s := string(r) + "..."
		if float64(font.MeasureString(face, s).Ceil()) <= maxW {
			return s
		}
	}
	return ""
}

// wrap breaks text into lines no wider than maxW, splitting on spaces.
// A single word wider than maxW is shortened.
func wrap(face font.Face, text string, maxW float64) []string {
	var lines []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, fit(face, string(cur), maxW))
			cur = cur[:0]
		}
	}
	word := []rune{}
	addWord := func() {
		if len(word) == 0 {
			return
		}
		candidate := string(cur)
		if len(cur) > 0 {
			candidate += " "
		}
		candidate += string(word)
		if len(cur) > 0 && float64(font.MeasureString(face, candidate).Ceil()) > maxW {
			flush()
			candidate = string(word)
		}
		cur = append(cur[:0], []rune(candidate)...)
		word = word[:0]
	}
	for _, ch := range text {
		switch ch {
		case ' ', '\t':
			addWord()
		case '\n':
			addWord()
			flush()
		default:
			word = append(word, ch)
		}
	}
	addWord()
	flush()
	return lines
}
