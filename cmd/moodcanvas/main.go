// Package main provides the moodcanvas CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/internal/config"
	"github.com/ha1tch/moodcanvas/internal/logging"
	"github.com/ha1tch/moodcanvas/internal/ui"
)

// Version is set at build time via ldflags
var Version = "dev"

// Global flags
var (
	configPath string
	logLevel   string
)

// Loaded by the root pre-run for every command.
var (
	cfg    *config.Config
	logger = zap.NewNop()
)

func main() {
	os.Exit(execute())
}

// execute runs the command tree and maps its error to an exit code.
func execute() int {
	defer func() { _ = logger.Sync() }()

	if err := rootCmd.Execute(); err != nil {
		// SilenceErrors is set, so cobra's own errors are printed here too
		fmt.Fprintf(rootCmd.ErrOrStderr(), "%s %s\n", ui.Bad.Sprint("Error:"), err)
		return exitCode(err)
	}
	return ExitSuccess
}

var rootCmd = &cobra.Command{
	Use:   "moodcanvas",
	Short: "Inspect, edit and render moodboard canvas files",
	Long: `moodcanvas works with moodboard canvas files: images, concept nodes,
imported items, output nodes and the prompt cards generated from them.

Board files of versions 7 through 11 are read; files are always written
as version 11. Image and item analysis, and prompt generation, use an
OpenAI-compatible model server configured in config.toml or through
MOODCANVAS_LOCAL_URL.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/moodcanvas/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.Version = Version
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: ExitUsage, err: err}
	})
}

// loadConfig reads configuration and builds the logger. The editor
// replaces the logger with a file logger of its own.
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	cfg = c

	l, err := logging.New(c.Log.Level, c.Log.Format, c.Log.File)
	if err != nil {
		return usageError("%v", err)
	}
	logger = l
	return nil
}

// exactArgs is cobra.ExactArgs with the usage exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &exitError{code: ExitUsage, err: err}
		}
		return nil
	}
}

// rangeArgs is cobra.RangeArgs with the usage exit code.
func rangeArgs(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.RangeArgs(min, max)(cmd, args); err != nil {
			return &exitError{code: ExitUsage, err: err}
		}
		return nil
	}
}
