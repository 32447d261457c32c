package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var untrackCmd = &cobra.Command{
	Use:   "untrack <path>...",
	Short: "Stop managing files",
	Long: `Removes files from the manifest and the git filter. The working tree files
are left alone. Ciphertext already committed to git history is not touched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting untrack command")
		spinner, cleanup := startSpinner("Untracking files...", verbose)
		defer cleanup()

		result, err := workflows.Untrack(context.Background(), workflows.UntrackOptions{
			Paths:  args,
			Logger: Logger,
		})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.SuccessLine(fmt.Sprintf("Untracked %d file(s)", len(result.Untracked)))
		for _, p := range result.Untracked {
			msg += "\n  " + ui.Path.Sprint(p)
		}
		msg += "\n" + ui.HintLine("The files are plaintext now. Add them to "+ui.Path.Sprint(".gitignore")+" or remove them with "+ui.Code.Sprint("git rm --cached"))
		spinner.FinalMSG = msg
		return nil
	},
}
