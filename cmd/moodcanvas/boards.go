package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ha1tch/moodcanvas/internal/config"
	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/boardfile"
)

// openBoard loads the board at path. With create set, a missing file
// yields an empty board that will be written on save.
func openBoard(path string, create bool, opts ...board.Option) (*board.Board, error) {
	opts = append([]board.Option{board.WithLogger(logger)}, opts...)
	b, err := board.Open(path, opts...)
	if err == nil {
		return b, nil
	}
	if create && errors.Is(err, os.ErrNotExist) {
		logger.Debug("starting new board")
		return board.New(opts...), nil
	}
	return nil, err
}

// saveBoard writes b back to path.
func saveBoard(b *board.Board, path string) error {
	if err := b.Save(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// newAnalyzer is replaced in tests.
var newAnalyzer = analyzerFor

// analyzerFor builds the model client for doc. A server URL saved in the
// board is used unless the environment sets one.
func analyzerFor(doc *boardfile.Document) analysis.Analyzer {
	opts := cfg.ClientOptions(logger)
	if s := doc.Settings; s != nil && s.LocalURL != "" && os.Getenv(config.EnvLocalURL) == "" {
		opts = append(opts, analysis.WithBaseURL(s.LocalURL))
	}
	return analysis.NewClient(opts...)
}

// openAnalyzing loads a board wired to the configured model server. With
// create set, a missing file yields an empty board.
func openAnalyzing(path string, create bool, opts ...board.Option) (*board.Board, error) {
	doc, err := boardfile.ReadFile(path)
	switch {
	case err == nil:
	case create && errors.Is(err, os.ErrNotExist):
		doc = &boardfile.Document{Version: boardfile.CurrentVersion}
	default:
		return nil, err
	}
	opts = append([]board.Option{
		board.WithLogger(logger),
		board.WithAnalyzer(newAnalyzer(doc)),
		board.WithConcurrency(cfg.Analysis.Concurrency),
	}, opts...)
	b := board.New(opts...)
	if doc.Graph != nil {
		b.Load(doc)
	}
	return b, nil
}
