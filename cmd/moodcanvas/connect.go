package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(setContextCmd)
}

var connectCmd = &cobra.Command{
	Use:   "connect FILE TARGET_ID SOURCE_ID",
	Short: "Feed one entity into a node or item",
	Long: `Connect SOURCE_ID into TARGET_ID. Nodes accept images, nodes and items;
items accept nodes. Connecting twice is a no-op.`,
	Args: exactArgs(3),
	RunE: runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect FILE TARGET_ID SOURCE_ID",
	Short: "Remove a connection",
	Args:  exactArgs(3),
	RunE:  runDisconnect,
}

var removeCmd = &cobra.Command{
	Use:   "remove FILE ID",
	Short: "Remove an entity and its connections",
	Long: `Remove any entity by id along with every connection that touches it.
Prompt cards generated by a removed output node are kept.`,
	Args: exactArgs(2),
	RunE: runRemove,
}

var setContextCmd = &cobra.Command{
	Use:   "set-context FILE NODE_ID TEXT",
	Short: "Set the text of a context node",
	Args:  exactArgs(3),
	RunE:  runSetContext,
}

func runConnect(cmd *cobra.Command, args []string) error {
	path, target, source := args[0], args[1], args[2]
	b, err := openBoard(path, false)
	if err != nil {
		return err
	}
	added, err := b.Link(source, target)
	if err != nil {
		return err
	}
	if !added {
		outputWarn(cmd.OutOrStdout(), "%s already feeds %s", source, target)
		return nil
	}
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "connected %s -> %s", source, target)
	return nil
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	path, target, source := args[0], args[1], args[2]
	b, err := openBoard(path, false)
	if err != nil {
		return err
	}
	if !b.Unlink(source, target) {
		outputWarn(cmd.OutOrStdout(), "%s does not feed %s", source, target)
		return nil
	}
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "disconnected %s -> %s", source, target)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	path, id := args[0], args[1]
	b, err := openBoard(path, false)
	if err != nil {
		return err
	}
	if err := b.Remove(id); err != nil {
		return err
	}
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "removed %s", id)
	return nil
}

func runSetContext(cmd *cobra.Command, args []string) error {
	path, id, text := args[0], args[1], args[2]
	b, err := openBoard(path, false)
	if err != nil {
		return err
	}
	if err := b.SetContextText(id, text); err != nil {
		return err
	}
	if err := saveBoard(b, path); err != nil {
		return err
	}
	outputDone(cmd.OutOrStdout(), "context text set on %s", id)
	return nil
}
