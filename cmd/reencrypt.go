package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/reencrypt"
	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var reencryptWorkers int

func init() {
	reencryptCmd.Flags().IntVarP(&reencryptWorkers, "workers", "w", 0, "concurrent workers (defaults to settings.workers)")
}

func resetReencryptCommandState() {
	reencryptWorkers = 0
}

var reencryptCmd = &cobra.Command{
	Use:   "reencrypt",
	Short: "Re-encrypt every stale file for the current members",
	Long: `Brings every tracked file up to the live recipient set. New ciphertext is
staged first and the manifest is replaced in one step, so an interrupted
run never leaves a mix of old and new recipients.

An interrupted run is resumed, or rolled back if the registry changed
since. Files that failed stay listed; the finished ones are kept for the
next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting reencrypt command")
		spinner, cleanup := startSpinner("Planning re-encryption...", verbose)
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var finished atomic.Int64
		result, err := workflows.Reencrypt(ctx, workflows.ReencryptOptions{
			Workers: reencryptWorkers,
			OnState: func(s reencrypt.State) {
				Logger.Debugf("Coordinator state: %s", s)
				switch s {
				case reencrypt.StateResuming:
					setSuffix(spinner, "Resuming interrupted re-encryption...")
				case reencrypt.StateCommitting:
					setSuffix(spinner, "Committing manifest...")
				}
			},
			OnFile: func(path string, err error) {
				n := finished.Add(1)
				setSuffix(spinner, fmt.Sprintf("Re-encrypting... %d file(s) done", n))
			},
			Backend: cryptoBackend,
			Logger:  Logger,
		})
		if err != nil {
			if ctx.Err() != nil {
				spinner.FinalMSG = ui.WarningLine("Interrupted. Finished files are staged; run " +
					ui.Code.Sprint("lockbox reencrypt") + " to resume")
				return &reportedError{err: err}
			}
			Logger.Errorf("Reencrypt failed: %v", err)
			return fail(spinner, err)
		}

		spinner.FinalMSG = reencryptSummary(result)
		return nil
	},
}

// reencryptSummary describes a finished run.
func reencryptSummary(r *workflows.ReencryptResult) string {
	var msg string
	if r.RolledBack {
		msg = ui.WarningLine("Discarded an interrupted run for an older recipient set") + "\n"
	}
	if len(r.Reencrypted) == 0 {
		if r.Reconciled {
			return msg + ui.SuccessLine(fmt.Sprintf("Registry reconciled at version %d; no files needed re-encryption", r.TargetVersion))
		}
		return msg + ui.SuccessLine("Everything is up to date")
	}

	msg += ui.SuccessLine(fmt.Sprintf("Re-encrypted %d file(s) for recipient version %d using %d worker(s)",
		len(r.Reencrypted), r.TargetVersion, r.Workers))
	if r.Resumed {
		msg += "\n" + ui.Muted.Sprint(fmt.Sprintf("Resumed operation %s, reused %d staged file(s)", r.OperationID, r.Reused))
	}
	if r.NeedsRenormalize() {
		msg += "\n" + ui.HintLine("Run "+ui.Code.Sprint("git add --renormalize .")+" and commit to publish the new ciphertext")
	}
	return msg
}
