package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

func init() {
	filterCmd.AddCommand(filterCleanCmd)
	filterCmd.AddCommand(filterSmudgeCmd)
}

// The filter commands are run by git with the file content on stdin. They
// never start a spinner: stdout carries the converted content.
var filterCmd = &cobra.Command{
	Use:    "filter",
	Short:  "Git filter driver entry points",
	Hidden: true,
}

var filterCleanCmd = &cobra.Command{
	Use:   "clean <path>",
	Short: "Encrypt stdin to stdout for git",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Debugf("filter clean %s", args[0])
		return runFilter(cmd, args[0], workflows.FilterClean)
	},
}

var filterSmudgeCmd = &cobra.Command{
	Use:   "smudge <path>",
	Short: "Decrypt stdin to stdout for git",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Debugf("filter smudge %s", args[0])
		return runFilter(cmd, args[0], workflows.FilterSmudge)
	},
}

func runFilter(cmd *cobra.Command, path string, run func(context.Context, workflows.FilterOptions) error) error {
	err := run(context.Background(), workflows.FilterOptions{
		Path:    path,
		In:      cmd.InOrStdin(),
		Out:     cmd.OutOrStdout(),
		Backend: cryptoBackend,
		Logger:  Logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorLine(fmt.Sprintf("lockbox %s %s: %v", cmd.Name(), path, err)))
		return &reportedError{err: err}
	}
	return nil
}
