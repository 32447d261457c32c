package cmd

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var (
	revokeNoReencrypt bool
	revokeWorkers     int
)

func init() {
	revokeMemberCmd.Flags().BoolVar(&revokeNoReencrypt, "no-reencrypt", false, "only update the registry; run 'lockbox reencrypt' later")
	revokeMemberCmd.Flags().IntVarP(&revokeWorkers, "workers", "w", 0, "concurrent re-encryption workers (defaults to settings.workers)")
}

func resetRevokeMemberCommandState() {
	revokeNoReencrypt = false
	revokeWorkers = 0
}

var revokeMemberCmd = &cobra.Command{
	Use:   "revoke-member <fingerprint>",
	Short: "Revoke a team member",
	Long: `Revokes a member and re-encrypts every tracked file for the remaining
members. The member's record is kept for audit history.

Ciphertext already committed to git history stays readable to the revoked
member. Rotate any secret they could have seen.

Use --no-reencrypt to batch several membership changes into one
re-encryption.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting revoke-member command")
		spinner, cleanup := startSpinner("Revoking member...", verbose)
		defer cleanup()

		var finished atomic.Int64
		result, err := workflows.RevokeMember(context.Background(), workflows.RevokeMemberOptions{
			Fingerprint: args[0],
			Reencrypt:   !revokeNoReencrypt,
			Workers:     revokeWorkers,
			OnFile: func(path string, err error) {
				n := finished.Add(1)
				setSuffix(spinner, fmt.Sprintf("Re-encrypting... %d file(s) done", n))
			},
			Backend: cryptoBackend,
			Logger:  Logger,
		})
		if err != nil {
			Logger.Errorf("Revoke failed: %v", err)
			return fail(spinner, err)
		}

		name := ui.Highlight.Sprint(result.Member.Name)
		if result.AlreadyRevoked {
			spinner.FinalMSG = ui.WarningLine(fmt.Sprintf("%s was already revoked", name))
			return nil
		}

		msg := ui.SuccessLine(fmt.Sprintf("Revoked %s %s at recipient version %d", name,
			ui.Fingerprint.Sprint(ui.ShortFingerprint(result.Member.Fingerprint)), result.RecipientVersion))
		switch {
		case result.Reencrypt != nil:
			msg += "\n" + reencryptSummary(result.Reencrypt)
		case result.StaleFiles > 0:
			msg += "\n" + ui.WarningLine(fmt.Sprintf("%d tracked file(s) are still readable by them. Run %s",
				result.StaleFiles, ui.Code.Sprint("lockbox reencrypt")))
		}
		msg += "\n" + ui.HintLine("Secrets in git history are still readable by this member; rotate them")
		spinner.FinalMSG = msg
		return nil
	},
}
