package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var trackCmd = &cobra.Command{
	Use:   "track <path|glob>...",
	Short: "Encrypt files and manage them through git",
	Long: `Encrypts the matched files for the active members, records them in the
manifest, and routes them through the lockbox git filter.

Paths are relative to the repository root. Directories are searched
recursively and globs support **.

Examples:
  lockbox track .env
  lockbox track 'config/**/*.secret.yaml'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting track command")
		spinner, cleanup := startSpinner("Tracking files...", verbose)
		defer cleanup()

		result, err := workflows.Track(context.Background(), workflows.TrackOptions{
			Patterns: args,
			Backend:  cryptoBackend,
			Logger:   Logger,
		})
		if err != nil {
			Logger.Errorf("Track failed: %v", err)
			return fail(spinner, err)
		}

		var b strings.Builder
		b.WriteString(ui.SuccessLine(fmt.Sprintf("Tracking %d file(s)", len(result.Tracked))))
		for _, p := range result.Tracked {
			b.WriteString("\n  " + ui.Path.Sprint(p))
		}
		if len(result.AlreadyTracked) > 0 {
			fmt.Fprintf(&b, "\n%s", ui.Muted.Sprint(fmt.Sprintf("%d file(s) were already tracked", len(result.AlreadyTracked))))
		}
		b.WriteString("\n" + ui.HintLine("Commit "+ui.Path.Sprint(".gitattributes")+" and "+ui.Path.Sprint(".lockbox/")+" with the files"))
		spinner.FinalMSG = b.String()
		return nil
	},
}
