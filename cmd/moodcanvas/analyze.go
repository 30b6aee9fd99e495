package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/internal/ui"
	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

var (
	analyzeConcurrency int
	generateMode       string
)

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeConcurrency, "concurrency", "j", 0, "Parallel requests (default from config)")
	generateCmd.Flags().StringVarP(&generateMode, "mode", "m", "", "Switch the node to consolidated or double-output first")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(generateCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Run pending image and item analyses",
	Long: `Analyze every image connected to a concept node that has no result yet,
and every item without keywords. Earlier failures are retried. Results
and failures are saved to the board either way.`,
	Args: exactArgs(1),
	RunE: runAnalyze,
}

var generateCmd = &cobra.Command{
	Use:   "generate FILE OUTPUT_ID",
	Short: "Generate prompt cards for an output node",
	Long: `Aggregate everything connected to an output node and synthesize a prompt.
Consolidated mode adds one card; double-output mode adds a positive and
a negative card.`,
	Args: exactArgs(2),
	RunE: runGenerate,
}

// signalContext is cancelled on interrupt.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	var opts []board.Option
	if analyzeConcurrency > 0 {
		opts = append(opts, board.WithConcurrency(analyzeConcurrency))
	}
	b, err := openAnalyzing(path, false, opts...)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	n := b.PendingCount()
	if n == 0 {
		outputDone(w, "nothing to analyze")
		return nil
	}
	fmt.Fprintf(w, "%s analyzing %d pending result(s)...\n", ui.Info.Sprint("→"), n)

	ctx, cancel := signalContext()
	defer cancel()
	runErr := b.AnalyzePending(ctx)

	// failures are stored on their entities, so save regardless
	if err := saveBoard(b, path); err != nil {
		return err
	}
	if runErr != nil {
		failed := len(unwrapJoined(runErr))
		logger.Warn("analysis finished with failures", zap.Int("failed", failed), zap.Int("total", n))
		return fmt.Errorf("%d of %d analyses failed: %w", failed, n, runErr)
	}
	outputDone(w, "analyzed %d result(s)", n)
	return nil
}

// unwrapJoined returns the errors inside an errors.Join result.
func unwrapJoined(err error) []error {
	var j interface{ Unwrap() []error }
	if errors.As(err, &j) {
		return j.Unwrap()
	}
	return []error{err}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	path, outputID := args[0], args[1]
	b, err := openAnalyzing(path, false)
	if err != nil {
		return err
	}
	if generateMode != "" {
		if err := b.SetOutputMode(outputID, graph.OutputMode(generateMode)); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	cards, err := b.Generate(ctx, outputID)
	if err != nil {
		return err
	}
	if err := saveBoard(b, path); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	outputDone(w, "generated %d card(s) for %s", len(cards), outputID)
	for _, c := range cards {
		fmt.Fprintf(w, "\n%s %s\n", ui.Brand.Sprint(cardTitle(c.Type)), ui.Subtle.Sprint(c.ID))
		fmt.Fprintln(w, strings.TrimSpace(c.Prompt))
	}
	return nil
}

func cardTitle(t graph.CardType) string {
	switch t {
	case graph.CardPositive:
		return "Positive prompt"
	case graph.CardNegative:
		return "Negative prompt"
	}
	return "Prompt"
}
