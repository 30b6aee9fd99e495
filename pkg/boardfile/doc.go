// Package boardfile reads and writes moodboard canvas documents.
//
// A document is a single JSON object carrying a version number and every
// entity table of a graph. Versions 7 through 11 load through one
// reconciling loader; the writer always emits CurrentVersion.
package boardfile

import (
	"errors"
	"fmt"

	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// Supported document versions.
const (
	MinVersion     = 7
	MaxVersion     = 11
	CurrentVersion = 11
)

// Errors returned by the loader.
var (
	ErrUnsupportedVersion = errors.New("unsupported file version")
	ErrEmptyDocument      = errors.New("file is empty")
)

// VersionError reports a document whose version is outside the supported
// range or is not an integer. Raw is the version as written in the file.
type VersionError struct {
	Raw string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: this viewer supports versions %d-%d, but the file is version %s",
		ErrUnsupportedVersion, MinVersion, MaxVersion, e.Raw)
}

func (e *VersionError) Unwrap() error { return ErrUnsupportedVersion }

// ParseError wraps malformed document content.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "failed to parse board file: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Settings is the optional analysis provider block saved with a board.
type Settings struct {
	Provider string `json:"provider"`
	LocalURL string `json:"localUrl"`
}

// Document is a loaded or to-be-saved board.
type Document struct {
	Version  int
	Graph    *graph.Graph
	Settings *Settings
}

// FallbackPosition is where an entity without a stored position is put.
// Entities cascade in a small diagonal so they never stack at the origin.
func FallbackPosition(index int) (x, y float64) {
	off := 50 + float64(index%5)*20
	return off, off
}
