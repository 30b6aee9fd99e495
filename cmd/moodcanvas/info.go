package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ha1tch/moodcanvas/internal/ui"
	"github.com/ha1tch/moodcanvas/pkg/boardfile"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

var infoFormat string

func init() {
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", FormatText, "Output format: text, json, yaml")
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Summarise a board file",
	Long: `Show entity counts, output nodes with their connection counts, and how
many references point at missing entities.`,
	Args: exactArgs(1),
	RunE: runInfo,
}

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check that a board file loads",
	Long: `Load a board file and list dangling references. Dangling references are
tolerated by every command, so they are reported without failing.
Exits 3 when the file version is not supported.`,
	Args: exactArgs(1),
	RunE: runValidate,
}

// BoardInfo is the info command's report.
type BoardInfo struct {
	File     string       `json:"file" yaml:"file"`
	Version  int          `json:"version" yaml:"version"`
	Images   int          `json:"images" yaml:"images"`
	Concepts int          `json:"concepts" yaml:"concepts"`
	Contexts int          `json:"contexts" yaml:"contexts"`
	Items    int          `json:"items" yaml:"items"`
	Cards    int          `json:"cards" yaml:"cards"`
	Edges    int          `json:"edges" yaml:"edges"`
	Outputs  []OutputInfo `json:"outputs" yaml:"outputs"`
	Dangling int          `json:"dangling" yaml:"dangling"`
}

// OutputInfo describes one output node.
type OutputInfo struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Mode        string `json:"mode" yaml:"mode"`
	Connections int    `json:"connections" yaml:"connections"`
}

func buildInfo(path string, doc *boardfile.Document) BoardInfo {
	g := doc.Graph
	info := BoardInfo{
		File:     path,
		Version:  doc.Version,
		Images:   len(g.Images),
		Items:    len(g.Items),
		Cards:    len(g.Cards),
		Edges:    g.Edges.Len(),
		Outputs:  []OutputInfo{},
		Dangling: len(g.Dangling()),
	}
	for _, n := range g.Nodes {
		switch n.Kind {
		case graph.KindConcept:
			info.Concepts++
		case graph.KindContext:
			info.Contexts++
		case graph.KindOutput:
			out := OutputInfo{ID: n.ID, Name: n.Name, Connections: g.ConnectionCountOf(n.ID)}
			if n.Output != nil {
				out.Mode = string(n.Output.Mode)
			}
			info.Outputs = append(info.Outputs, out)
		}
	}
	sort.Slice(info.Outputs, func(i, j int) bool { return info.Outputs[i].Name < info.Outputs[j].Name })
	return info
}

func runInfo(cmd *cobra.Command, args []string) error {
	doc, err := boardfile.ReadFile(args[0])
	if err != nil {
		return err
	}
	info := buildInfo(args[0], doc)

	w := cmd.OutOrStdout()
	if done, err := outputStructured(w, infoFormat, info); done {
		return err
	}

	fmt.Fprintf(w, "%s %s\n", ui.Brand.Sprint(info.File), ui.Subtle.Sprintf("(version %d)", info.Version))
	fmt.Fprintf(w, "  images:   %d\n", info.Images)
	fmt.Fprintf(w, "  concepts: %d\n", info.Concepts)
	fmt.Fprintf(w, "  contexts: %d\n", info.Contexts)
	fmt.Fprintf(w, "  outputs:  %d\n", len(info.Outputs))
	fmt.Fprintf(w, "  items:    %d\n", info.Items)
	fmt.Fprintf(w, "  cards:    %d\n", info.Cards)
	fmt.Fprintf(w, "  edges:    %d\n", info.Edges)
	if len(info.Outputs) > 0 {
		fmt.Fprintln(w)
		rows := make([][]string, 0, len(info.Outputs))
		for _, o := range info.Outputs {
			rows = append(rows, []string{o.ID, o.Name, o.Mode, fmt.Sprint(o.Connections)})
		}
		ui.Table(w, []string{"ID", "NAME", "MODE", "CONNECTED"}, rows)
	}
	if info.Dangling > 0 {
		fmt.Fprintln(w)
		outputWarn(w, "%d dangling reference(s)", info.Dangling)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := boardfile.ReadFile(args[0])
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	dangling := doc.Graph.Dangling()
	if len(dangling) == 0 {
		outputDone(w, "%s is a valid version %d board", args[0], doc.Version)
		return nil
	}

	outputWarn(w, "%s loads with %d dangling reference(s)", args[0], len(dangling))
	rows := make([][]string, 0, len(dangling))
	for _, d := range dangling {
		rows = append(rows, []string{d.From, d.To, d.Reason})
	}
	ui.Table(w, []string{"FROM", "TO", "REASON"}, rows)
	return nil
}
