package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var (
	initProjectName   string
	initMembers       []string
	initFilterCommand string
)

func init() {
	initCmd.Flags().StringVarP(&initProjectName, "name", "n", "", "project name (defaults to the repository directory name)")
	initCmd.Flags().StringArrayVarP(&initMembers, "member", "m", nil, "add a member as FINGERPRINT[:NAME] (repeatable)")
	initCmd.Flags().StringVar(&initFilterCommand, "filter-command", workflows.DefaultFilterCommand, "executable git runs for the filter driver")
	_ = initCmd.Flags().MarkHidden("filter-command")
}

func resetInitCommandState() {
	initProjectName = ""
	initMembers = nil
	initFilterCommand = workflows.DefaultFilterCommand
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize lockbox in the current git repository",
	Long: `Creates .lockbox/ at the root of the git repository, writes the project
configuration and an empty manifest, and installs the lockbox filter driver
into the repository's git config.

Members given with --member become the first recipients. Their public keys
are exported from your keyring.

Examples:
  lockbox init
  lockbox init --member 9F3C1A2B...:alice --member 4D7E0B9C...:bob`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting init command")
		spinner, cleanup := startSpinner("Initializing lockbox...", verbose)
		defer cleanup()

		var members []workflows.MemberSpec
		for _, raw := range initMembers {
			spec, err := workflows.ParseMemberSpec(raw)
			if err != nil {
				return fail(spinner, err)
			}
			members = append(members, spec)
		}

		result, err := workflows.Init(context.Background(), workflows.InitOptions{
			ProjectName:   initProjectName,
			Members:       members,
			FilterCommand: initFilterCommand,
			Backend:       cryptoBackend,
			Logger:        Logger,
		})
		if err != nil {
			Logger.Errorf("Init failed: %v", err)
			return fail(spinner, err)
		}

		var b strings.Builder
		b.WriteString(ui.SuccessLine(fmt.Sprintf("Lockbox initialized for %s", ui.Highlight.Sprint(result.ProjectName))))
		for _, m := range result.Members {
			fmt.Fprintf(&b, "\n  %s %s", ui.Highlight.Sprint(m.Name), ui.Fingerprint.Sprint(ui.ShortFingerprint(m.Fingerprint)))
		}
		if len(result.Members) == 0 {
			b.WriteString("\n" + ui.HintLine("Run "+ui.Code.Sprint("lockbox add-member")+" to add the first member"))
		}
		b.WriteString("\n" + ui.HintLine("Commit "+ui.Path.Sprint(".lockbox/")+", then run "+ui.Code.Sprint("lockbox track <files>")))
		spinner.FinalMSG = b.String()
		return nil
	},
}
