package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var membersAll bool

func init() {
	membersCmd.Flags().BoolVarP(&membersAll, "all", "a", false, "include revoked members")
}

func resetMembersCommandState() {
	membersAll = false
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List team members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting members command")
		spinner, cleanup := startSpinner("Loading members...", verbose)
		defer cleanup()

		result, err := workflows.Members(context.Background(), workflows.MembersOptions{
			IncludeRevoked: membersAll,
			Logger:         Logger,
		})
		if err != nil {
			return fail(spinner, err)
		}

		if len(result.Members) == 0 {
			spinner.FinalMSG = ui.HintLine("No members yet. Run " + ui.Code.Sprint("lockbox add-member"))
			return nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Recipient version %d", result.RecipientVersion)
		if result.Dirty {
			b.WriteString(" " + ui.Warning.Sprint("(reencrypt pending)"))
		}
		b.WriteString("\n")
		for _, m := range result.Members {
			line := fmt.Sprintf("  %-20s %s  added %s", m.Name, ui.Fingerprint.Sprint(m.Fingerprint), humanize.Time(m.AddedAt))
			if !m.Active() {
				line = ui.Muted.Sprint(fmt.Sprintf("%s, revoked %s", line, humanize.Time(*m.RevokedAt)))
			} else if !m.KeyPresent {
				line += " " + ui.Warning.Sprint("(no key in .lockbox/keys)")
			}
			b.WriteString(line + "\n")
		}
		spinner.FinalMSG = b.String()
		return nil
	},
}
