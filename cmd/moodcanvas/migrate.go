package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/pkg/boardfile"
)

var migrateOut string

func init() {
	migrateCmd.Flags().StringVarP(&migrateOut, "output", "o", "", "Write to this file instead of replacing FILE")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate FILE",
	Short: "Rewrite a board file at the current version",
	Long: `Load a board file of any supported version (7 through 11) and write it
back as version 11. Legacy connection tables and stored analysis errors
are normalised on the way through.`,
	Args: exactArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	in := args[0]
	doc, err := boardfile.ReadFile(in)
	if err != nil {
		return err
	}
	from := doc.Version

	out := migrateOut
	if out == "" {
		out = in
	}
	doc.Version = boardfile.CurrentVersion
	if err := boardfile.WriteFile(out, doc); err != nil {
		return err
	}
	logger.Debug("board migrated", zap.String("file", in), zap.Int("from", from), zap.String("output", out))
	outputDone(cmd.OutOrStdout(), "%s: version %d -> %d, written to %s", in, from, boardfile.CurrentVersion, out)
	return nil
}
