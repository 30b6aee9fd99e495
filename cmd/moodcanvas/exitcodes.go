package main

import (
	"errors"
	"fmt"

	"github.com/ha1tch/moodcanvas/internal/config"
	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/boardfile"
	"github.com/ha1tch/moodcanvas/pkg/graph"
	"github.com/ha1tch/moodcanvas/pkg/render"
)

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (I/O, analysis, malformed file)
	ExitUsage       = 2 // Bad arguments, invalid config, rejected edit
	ExitUnsupported = 3 // Board file version outside 7-11
)

// exitError carries an explicit exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// usageError returns an error that exits with ExitUsage.
func usageError(format string, args ...interface{}) error {
	return &exitError{code: ExitUsage, err: fmt.Errorf(format, args...)}
}

// usageErrors are edit rejections the user can fix by changing arguments.
var usageErrors = []error{
	config.ErrInvalid,
	graph.ErrEmptyName,
	graph.ErrDuplicateName,
	graph.ErrNotFound,
	graph.ErrNotOutput,
	graph.ErrNotContext,
	graph.ErrInvalidMode,
	board.ErrSelfConnection,
	board.ErrNotAcceptor,
	board.ErrIncompatible,
	board.ErrNothingConnected,
	board.ErrNotAnalyzable,
	render.ErrEmptyRegion,
}

// exitCode maps an error returned by a command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, boardfile.ErrUnsupportedVersion) {
		return ExitUnsupported
	}
	for _, target := range usageErrors {
		if errors.Is(err, target) {
			return ExitUsage
		}
	}
	return ExitError
}
