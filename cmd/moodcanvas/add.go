package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/ha1tch/moodcanvas/pkg/boardfile"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// Node kinds accepted by add-node --kind.
const (
	kindConcept = "concept"
	kindContext = "context"
	kindOutput  = "output"
)

var (
	addKind string
	addAt   string
)

func init() {
	addNodeCmd.Flags().StringVarP(&addKind, "kind", "k", kindConcept, "Node kind: concept, context, output")
	for _, c := range []*cobra.Command{addNodeCmd, addImageCmd, importCSVCmd} {
		c.Flags().StringVar(&addAt, "at", "", "Canvas position x,y (default: a free cascade slot)")
		rootCmd.AddCommand(c)
	}
}

var addNodeCmd = &cobra.Command{
	Use:   "add-node FILE [NAME]",
	Short: "Add a concept, context or output node",
	Long: `Add a node to a board, creating the file if it does not exist.

Concept nodes need a unique NAME. Context and output nodes are named
automatically; output nodes become "Output", "Output 2", and so on.`,
	Args: rangeArgs(1, 2),
	RunE: runAddNode,
}

var addImageCmd = &cobra.Command{
	Use:   "add-image FILE IMAGE",
	Short: "Add an image card",
	Long: `Embed an image file in a board. The type is detected from the file
content; PNG, JPEG, GIF and WebP are accepted.`,
	Args: exactArgs(2),
	RunE: runAddImage,
}

var importCSVCmd = &cobra.Command{
	Use:   "import-csv FILE CSV",
	Short: "Import CSV rows as item cards",
	Long: `Add one item card per CSV row. The first row names the columns; a Name
or Product column titles the card.`,
	Args: exactArgs(2),
	RunE: runImportCSV,
}

// placement returns the --at position, or the cascade slot for index.
func placement(index int) (canvas.Point, error) {
	if addAt != "" {
		return parsePoint(addAt)
	}
	x, y := boardfile.FallbackPosition(index)
	return canvas.Point{X: x, Y: y}, nil
}

func runAddNode(cmd *cobra.Command, args []string) error {
	path := args[0]
	name := ""
	if len(args) > 1 {
		name = args[1]
	}

	b, err := openBoard(path, true)
	if err != nil {
		return err
	}
	var count int
	b.View(func(g *graph.Graph) { count = len(g.Nodes) })
	pos, err := placement(count)
	if err != nil {
		return err
	}

	var n *graph.Node
	switch strings.ToLower(addKind) {
	case kindConcept:
		if name == "" {
			return usageError("concept nodes need a NAME")
		}
		n, err = b.AddNode(name, pos)
	case kindContext:
		n, err = b.AddNode(graph.ContextName, pos)
	case kindOutput:
		n = b.AddOutputNode(pos)
	default:
		return usageError("unknown node kind %q (want concept, context or output)", addKind)
	}
	if err != nil {
		return err
	}
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "added %s node %q: %s", n.Kind, n.Name, n.ID)
	return nil
}

// detectImage returns the MIME type of an embeddable image.
func detectImage(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	for _, ok := range []string{"image/png", "image/jpeg", "image/gif", "image/webp"} {
		if mt.Is(ok) {
			return ok, nil
		}
	}
	return "", usageError("unsupported image type %s", mt.String())
}

func runAddImage(cmd *cobra.Command, args []string) error {
	path, imgPath := args[0], args[1]
	data, err := os.ReadFile(imgPath)
	if err != nil {
		return err
	}
	mime, err := detectImage(data)
	if err != nil {
		return fmt.Errorf("%s: %w", imgPath, err)
	}

	b, err := openBoard(path, true)
	if err != nil {
		return err
	}
	var count int
	b.View(func(g *graph.Graph) { count = len(g.Images) })
	pos, err := placement(count)
	if err != nil {
		return err
	}

	img := b.AddImage(base64.StdEncoding.EncodeToString(data), mime, pos)
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "added %s image: %s", mime, img.ID)
	return nil
}

func runImportCSV(cmd *cobra.Command, args []string) error {
	path, csvPath := args[0], args[1]
	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	rows, err := boardfile.ImportCSV(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", csvPath, err)
	}

	b, err := openBoard(path, true)
	if err != nil {
		return err
	}
	origin := canvas.Point{}
	if addAt != "" {
		if origin, err = parsePoint(addAt); err != nil {
			return err
		}
	}
	items := b.AddItems(rows, origin)
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "imported %d item(s) from %s", len(items), csvPath)
	return nil
}
