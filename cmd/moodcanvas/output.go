package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ha1tch/moodcanvas/internal/ui"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// outputJSON writes a value as formatted JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML writes a value as YAML.
func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// outputStructured writes v in a machine format. It reports false for
// FormatText so the caller can print its own layout.
func outputStructured(w io.Writer, format string, v interface{}) (bool, error) {
	switch format {
	case FormatJSON:
		return true, outputJSON(w, v)
	case FormatYAML:
		return true, outputYAML(w, v)
	case FormatText, "":
		return false, nil
	}
	return true, usageError("unknown format %q (want text, json or yaml)", format)
}

// outputDone prints a success line.
func outputDone(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", ui.StatusIcon(true), fmt.Sprintf(format, args...))
}

// outputWarn prints a warning line.
func outputWarn(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", ui.WarnIcon(), ui.Warn.Sprintf(format, args...))
}

// parsePoint parses "x,y".
func parsePoint(s string) (canvas.Point, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return canvas.Point{}, usageError("invalid point %q: want x,y", s)
	}
	return canvas.Point{X: v[0], Y: v[1]}, nil
}

// parseRect parses "x,y,w,h". Width and height must be positive.
func parseRect(s string) (canvas.Rect, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return canvas.Rect{}, usageError("invalid rectangle %q: want x,y,w,h", s)
	}
	if v[2] <= 0 || v[3] <= 0 {
		return canvas.Rect{}, usageError("invalid rectangle %q: width and height must be positive", s)
	}
	return canvas.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("value %q is not finite", p)
		}
		out[i] = f
	}
	return out, nil
}
