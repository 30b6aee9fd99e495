package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
)

func tinyPNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for x := 0; x < 4; x++ {
		for y := 0; y < 3; y++ {
			img.Set(x, y, color.RGBA{200, 30, 30, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testScene(t *testing.T) board.Scene {
	t.Helper()
	b := board.New()
	img := b.AddImage(tinyPNG(t), "image/png", canvas.Point{X: 0, Y: 0})
	n, err := b.AddNode("Style", canvas.Point{X: 400, Y: 0})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Link(img.ID, n.ID); err != nil {
		t.Fatal(err)
	}
	return b.Scene()
}

func TestRegion(t *testing.T) {
	s := testScene(t)

	r, err := Region(s, nil, 40)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}
	want := canvas.Rect{X: -40, Y: -40, W: 400 + board.ConceptShape.W + 80, H: board.ImageShape.H + 80}
	if r != want {
		t.Errorf("Expected %v, got %v", want, r)
	}

	sel := canvas.Rect{X: 10, Y: 10, W: 50, H: 60}
	r, err = Region(s, &sel, 40)
	if err != nil || r != sel {
		t.Errorf("Expected selection %v, got %v (%v)", sel, r, err)
	}

	if _, err := Region(s, &canvas.Rect{W: 0, H: 10}, 0); !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("Expected ErrEmptyRegion for flat selection, got %v", err)
	}
	if _, err := Region(board.Scene{}, nil, 40); !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("Expected ErrEmptyRegion for empty scene, got %v", err)
	}
}

func TestRenderPNG(t *testing.T) {
	s := testScene(t)
	region := canvas.Rect{X: 0, Y: 0, W: 300, H: 250}

	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.Scale = 0.5
	if err := RenderPNG(&buf, s, region, opts); err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 150 || b.Dy() != 125 {
		t.Errorf("Expected 150x125, got %dx%d", b.Dx(), b.Dy())
	}

	// the image card's picture is drawn with its red pixels
	found := false
	for y := 0; y < 125 && !found; y++ {
		for x := 0; x < 150; x++ {
			r, g, _, _ := img.At(x, y).RGBA()
			if r>>8 > 180 && g>>8 < 80 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("Expected the decoded picture in the output")
	}
}

func TestRenderPNGErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderPNG(&buf, board.Scene{}, canvas.Rect{}, DefaultOptions()); !errors.Is(err, ErrEmptyRegion) {
		t.Errorf("Expected ErrEmptyRegion, got %v", err)
	}
	if err := RenderPNG(&buf, board.Scene{}, canvas.Rect{W: 1e6, H: 1e6}, DefaultOptions()); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", err)
	}
}

func TestRenderPNGLimitCountsSupersampling(t *testing.T) {
	// 2048 squared is the largest region whose supersampled raster fits
	tests := []struct {
		name string
		side float64
	}{
		{"final size fits but raster does not", 3000},
		{"one unit over", 2049},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := outputSize(canvas.Rect{W: tt.side, H: tt.side}, 1)
			if w*h > MaxPixels {
				t.Fatalf("Expected the final %dx%d image to be under MaxPixels", w, h)
			}
			var buf bytes.Buffer
			err := RenderPNG(&buf, board.Scene{}, canvas.Rect{W: tt.side, H: tt.side}, DefaultOptions())
			if !errors.Is(err, ErrTooLarge) {
				t.Errorf("Expected ErrTooLarge for %dx%d, got %v", w, h, err)
			}
			if buf.Len() != 0 {
				t.Errorf("Expected nothing written, got %d bytes", buf.Len())
			}
		})
	}
}

func TestRenderSVG(t *testing.T) {
	s := testScene(t)
	region, err := Region(s, nil, 20)
	if err != nil {
		t.Fatal(err)
	}
	out, err := RenderSVG(s, region, DefaultOptions())
	if err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}

	for _, want := range []string{
		`<svg xmlns="http://www.w3.org/2000/svg"`,
		`href="data:image/png;base64,`,
		`marker-end="url(#arrow-0)"`,
		`>Style</text>`,
		"</svg>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected SVG to contain %q", want)
		}
	}
	if n := strings.Count(out, "<g id="); n != 2 {
		t.Errorf("Expected 2 cards, got %d", n)
	}
}

func TestRenderSVGSkipsOutsideRegion(t *testing.T) {
	s := testScene(t)
	out, err := RenderSVG(s, canvas.Rect{X: 0, Y: 0, W: 100, H: 100}, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, ">Style</text>") {
		t.Error("Node outside the region should not be drawn")
	}
}

func TestDecodeImage(t *testing.T) {
	s := testScene(t)
	img := s.Entries[0].Image
	if img == nil {
		t.Fatal("Expected the first entry to be the image card")
	}
	src, err := DecodeImage(img)
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if src.Bounds().Dx() != 4 {
		t.Errorf("Expected width 4, got %d", src.Bounds().Dx())
	}

	bad := *img
	bad.Base64 = "not base64!"
	if _, err := DecodeImage(&bad); err == nil {
		t.Error("Expected error for bad base64")
	}
}

func TestWrapChars(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want []string
	}{
		{"fits", "a cosy nook", 20, []string{"a cosy nook"}},
		{"breaks", "a cosy reading nook", 10, []string{"a cosy", "reading", "nook"}},
		{"long word clipped", "extraordinarily", 8, []string{"extra..."}},
		{"newlines", "one\ntwo", 10, []string{"one", "two"}},
		{"zero width", "x", 0, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := wrapChars(tc.text, tc.n)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWrapFont(t *testing.T) {
	face, err := newFace(goregular.TTF, 14)
	if err != nil {
		t.Fatal(err)
	}
	lines := wrap(face, "a cosy reading nook with warm light", 80)
	if len(lines) < 2 {
		t.Errorf("Expected text to wrap, got %q", lines)
	}
	if got := fit(face, "a very long title that will not fit", 60); !strings.HasSuffix(got, "...") {
		t.Errorf("Expected ellipsis, got %q", got)
	}
}
