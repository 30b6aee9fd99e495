package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/ha1tch/moodcanvas/internal/config"
)

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage moodcanvas configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file if none exists",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configFile()
		if err := config.EnsureExists(path); err != nil {
			return err
		}
		outputDone(cmd.OutOrStdout(), "config at %s", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after the file, .env and environment overrides.`,
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), configFile())
		return nil
	},
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}
