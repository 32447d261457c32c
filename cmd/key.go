package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var (
	keyName      string
	keyEmail     string
	keyRemoveYes bool
)

func init() {
	keyGenerateCmd.Flags().StringVar(&keyName, "name", "", "name for the key's user ID (defaults to your username)")
	keyGenerateCmd.Flags().StringVar(&keyEmail, "email", "", "email for the key's user ID (defaults to git user.email)")

	keyRemoveCmd.Flags().BoolVarP(&keyRemoveYes, "yes", "y", false, "skip the confirmation prompt (for automation)")

	keyCmd.AddCommand(keyGenerateCmd)
	keyCmd.AddCommand(keyListCmd)
	keyCmd.AddCommand(keyRemoveCmd)
}

func resetKeyCommandState() {
	keyName = ""
	keyEmail = ""
	keyRemoveYes = false
}

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage your personal keys",
	Long: `Generates, lists and removes the personal OpenPGP keys in your lockbox keyring
(LOCKBOX_KEYRING, default ~/.lockbox/keyring). These commands work outside
a lockbox project.`,
}

var keyGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a personal key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key generate command")
		spinner, cleanup := startSpinner("Generating key...", verbose)
		defer cleanup()

		info, err := workflows.KeyGenerate(context.Background(), workflows.KeyGenerateOptions{
			Name:    keyName,
			Email:   keyEmail,
			Backend: cryptoBackend,
			Logger:  Logger,
		})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ui.SuccessLine("Generated key "+ui.Fingerprint.Sprint(info.Fingerprint)) + "\n" +
			ui.HintLine("Ask a member to run "+ui.Code.Sprint("lockbox add-member "+info.Fingerprint)) + "\n" +
			ui.WarningLine("The private key is not passphrase protected")
		return nil
	},
}

var keyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your personal keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key list command")
		spinner, cleanup := startSpinner("Reading keyring...", verbose)
		defer cleanup()

		keys, err := workflows.KeyList(context.Background(), workflows.KeyListOptions{
			Backend: cryptoBackend,
			Logger:  Logger,
		})
		if err != nil {
			return fail(spinner, err)
		}
		if len(keys) == 0 {
			spinner.FinalMSG = ui.HintLine("No keys yet. Run " + ui.Code.Sprint("lockbox key generate"))
			return nil
		}

		var b strings.Builder
		for _, k := range keys {
			uid := k.Name
			if k.Email != "" {
				uid += " <" + k.Email + ">"
			}
			fmt.Fprintf(&b, "%s  %s  created %s", ui.Fingerprint.Sprint(k.Fingerprint), uid, humanize.Time(k.CreatedAt))
			if !k.HasPrivate {
				b.WriteString(" " + ui.Muted.Sprint("public only"))
			}
			b.WriteString("\n")
		}
		spinner.FinalMSG = b.String()
		return nil
	},
}

// confirmKeyRemove asks before deleting a private key. Anything but y/yes
// declines.
func confirmKeyRemove(in io.Reader, fingerprint string) bool {
	fmt.Printf("%s This deletes the private key %s from your keyring.\n", ui.Warning.Sprint("Warning:"), ui.Fingerprint.Sprint(fingerprint))
	fmt.Println("  Files encrypted only for it can no longer be decrypted on this machine.")
	fmt.Print("Do you want to continue? [y/N]: ")

	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		Logger.Errorf("Failed to read response: %v", err)
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

var keyRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>",
	Short: "Remove a personal key from your keyring",
	Long: `Deletes a personal key from your keyring. The fingerprint may be the full
fingerprint or its 64-bit key id. The team's copy of the public key in
.lockbox/keys is left alone; use revoke-member to stop encrypting for it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting key remove command")

		if !keyRemoveYes && !confirmKeyRemove(cmd.InOrStdin(), args[0]) {
			fmt.Println(ui.HintLine("Nothing was removed"))
			return nil
		}

		spinner, cleanup := startSpinner("Removing key...", verbose)
		defer cleanup()

		res, err := workflows.KeyRemove(context.Background(), workflows.KeyRemoveOptions{
			Fingerprint: args[0],
			Backend:     cryptoBackend,
			Logger:      Logger,
		})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.SuccessLine("Removed key " + ui.Fingerprint.Sprint(res.Key.Fingerprint))
		if res.ActiveMember {
			msg += "\n" + ui.WarningLine("This key is still an active member of this project") + "\n" +
				ui.HintLine("Run "+ui.Code.Sprint("lockbox revoke-member "+res.Key.Fingerprint)+" or add your new key with "+ui.Code.Sprint("lockbox add-member"))
		}
		spinner.FinalMSG = msg
		return nil
	},
}
