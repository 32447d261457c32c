package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/ui"
	"github.com/PolarWolf314/lockbox/internal/utils"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

var statusJSONOutput bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "output in JSON format")
}

func resetStatusCommandState() {
	statusJSONOutput = false
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every tracked file",
	Long: `Shows the recipient version and the state of every tracked file:

  - current:  encrypted for the current members, working tree matches
  - stale:    encrypted for an older recipient set (run 'lockbox reencrypt')
  - modified: working tree changed; git add will re-encrypt it
  - missing:  tracked but absent from the working tree

An interrupted re-encryption is reported as pending.

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting status command")

		if statusJSONOutput {
			result, err := workflows.Status(context.Background(), workflows.StatusOptions{Logger: Logger})
			if err != nil {
				data, _ := json.Marshal(map[string]string{"error": err.Error()})
				fmt.Println(string(data))
				return &reportedError{err: err}
			}
			return outputStatusJSON(result)
		}

		spinner, cleanup := startSpinner("Checking status...", verbose)
		defer cleanup()

		result, err := workflows.Status(context.Background(), workflows.StatusOptions{Logger: Logger})
		if err != nil {
			return fail(spinner, err)
		}
		spinner.FinalMSG = formatStatus(result)
		return nil
	},
}

func outputStatusJSON(result *workflows.StatusResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status to JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func formatStatus(r *workflows.StatusResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s\n", ui.Highlight.Sprint(r.ProjectName))
	fmt.Fprintf(&b, "Recipient version %d, %d active %s", r.RecipientVersion, r.ActiveMembers, utils.Pluralize(r.ActiveMembers, "member"))
	if r.RevokedMembers > 0 {
		fmt.Fprintf(&b, ", %d revoked", r.RevokedMembers)
	}
	b.WriteString("\n")

	if len(r.Files) == 0 {
		b.WriteString("\n" + ui.HintLine("No tracked files. Run "+ui.Code.Sprint("lockbox track <files>")) + "\n")
	} else {
		b.WriteString("\n")
		for _, f := range r.Files {
			fmt.Fprintf(&b, "  %-40s %-20s v%d, %s\n", f.Path, formatFileState(f.State), f.RecipientVersion, humanize.Time(f.EncryptedAt))
		}
		fmt.Fprintf(&b, "\nSummary: %d current, %d stale, %d modified, %d missing\n",
			r.Summary.Current, r.Summary.Stale, r.Summary.Modified, r.Summary.Missing)
	}

	if len(r.Unfiltered) > 0 {
		b.WriteString("\n" + ui.WarningLine(fmt.Sprintf("%d tracked %s not routed through the lockbox filter; git would commit plaintext",
			len(r.Unfiltered), utils.Pluralize(len(r.Unfiltered), "file"))) + "\n")
		for _, path := range r.Unfiltered {
			fmt.Fprintf(&b, "  %s\n", ui.Path.Sprint(path))
		}
		b.WriteString(ui.HintLine("Run "+ui.Code.Sprint("lockbox track <path>")+" to restore the filter line") + "\n")
	}

	if p := r.Pending; p != nil {
		b.WriteString("\n" + ui.WarningLine(fmt.Sprintf("Interrupted re-encryption %s (version %d, started %s): %d of %d staged",
			p.OperationID, p.TargetVersion, humanize.Time(p.StartedAt), p.Staged, p.Planned)) + "\n")
		for _, path := range p.Failed {
			fmt.Fprintf(&b, "  %s %s\n", ui.Error.Sprint("✗"), ui.Path.Sprint(path))
		}
		b.WriteString(ui.HintLine("Run "+ui.Code.Sprint("lockbox reencrypt")+" to resume") + "\n")
	} else if r.Dirty || r.Summary.Stale > 0 {
		b.WriteString("\n" + ui.HintLine("Run "+ui.Code.Sprint("lockbox reencrypt")+" to bring every file up to date") + "\n")
	}
	return b.String()
}

func formatFileState(s workflows.FileState) string {
	switch s {
	case workflows.StateCurrent:
		return ui.Success.Sprint(string(s))
	case workflows.StateStale:
		return ui.Warning.Sprint(string(s))
	case workflows.StateModified:
		return ui.Info.Sprint(string(s))
	default:
		return ui.Error.Sprint(string(s))
	}
}
