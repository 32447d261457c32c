package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var addMemberKeyFile string

func init() {
	addMemberCmd.Flags().StringVarP(&addMemberKeyFile, "key-file", "k", "", "armored public key to import instead of exporting from your keyring")
}

func resetAddMemberCommandState() {
	addMemberKeyFile = ""
}

var addMemberCmd = &cobra.Command{
	Use:   "add-member <fingerprint> [name]",
	Short: "Add a team member",
	Long: `Adds a member to the recipient registry and publishes their public key
into .lockbox/keys/.

Tracked files stay encrypted for the previous recipient set until
'lockbox reencrypt' runs.

Examples:
  lockbox add-member 9F3C1A2B4D5E6F708192A3B4C5D6E7F809A1B2C3 alice
  lockbox add-member 9F3C1A2B4D5E6F70 --key-file alice.asc`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting add-member command")
		spinner, cleanup := startSpinner("Adding member...", verbose)
		defer cleanup()

		opts := workflows.AddMemberOptions{
			Fingerprint: args[0],
			KeyFile:     addMemberKeyFile,
			Backend:     cryptoBackend,
			Logger:      Logger,
		}
		if len(args) > 1 {
			opts.Name = args[1]
		}

		result, err := workflows.AddMember(context.Background(), opts)
		if err != nil {
			Logger.Errorf("Add member failed: %v", err)
			return fail(spinner, err)
		}

		msg := ui.SuccessLine(fmt.Sprintf("Added %s %s at recipient version %d",
			ui.Highlight.Sprint(result.Member.Name),
			ui.Fingerprint.Sprint(ui.ShortFingerprint(result.Member.Fingerprint)),
			result.RecipientVersion))
		if result.StaleFiles > 0 {
			msg += "\n" + ui.HintLine(fmt.Sprintf("%d tracked file(s) are not readable by them yet. Run %s",
				result.StaleFiles, ui.Code.Sprint("lockbox reencrypt")))
		}
		spinner.FinalMSG = msg
		return nil
	},
}
