package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/PolarWolf314/lockbox/internal/backend"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/ui"
)

var (
	verbose bool
	debug   bool
	Logger  logger.Logger

	// cryptoBackend replaces the configured backend when set.
	cryptoBackend backend.Backend

	RootCmd = &cobra.Command{
		Use:   "lockbox",
		Short: "Share encrypted files in a git repository with a team",
		Long: `Lockbox keeps selected files in a git repository encrypted for every
active team member. Adding or revoking a member changes who future
ciphertext is encrypted for; reencrypt brings every tracked file up to date.

Tracked files pass through a git filter driver, so the working tree holds
plaintext while commits hold ciphertext.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Initializing %s with verbose=%t, debug=%t", cmd.CommandPath(), verbose, debug)
		},
	}
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")

	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(addMemberCmd)
	RootCmd.AddCommand(revokeMemberCmd)
	RootCmd.AddCommand(membersCmd)
	RootCmd.AddCommand(trackCmd)
	RootCmd.AddCommand(untrackCmd)
	RootCmd.AddCommand(reencryptCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(logCmd)
	RootCmd.AddCommand(keyCmd)
	RootCmd.AddCommand(filterCmd)
}

// reportedError marks an error whose message the command already printed.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// Execute runs the root command. Errors a command did not report itself,
// such as bad arguments, are printed here.
func Execute() error {
	err := RootCmd.Execute()
	var reported *reportedError
	if err != nil && !errors.As(err, &reported) {
		fmt.Fprintln(os.Stderr, ui.ErrorLine(err.Error()))
	}
	return err
}

// Helper functions for testing

// GetRootCmd returns the RootCmd for testing.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// ResetGlobalState resets all global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	cryptoBackend = nil
	resetInitCommandState()
	resetAddMemberCommandState()
	resetRevokeMemberCommandState()
	resetMembersCommandState()
	resetReencryptCommandState()
	resetStatusCommandState()
	resetLogCommandState()
	resetKeyCommandState()
}

// SetVerbose sets the verbose flag for testing.
func SetVerbose(v bool) {
	verbose = v
}

// SetDebug sets the debug flag for testing.
func SetDebug(d bool) {
	debug = d
}

// SetLogger sets the logger for testing.
func SetLogger(l logger.Logger) {
	Logger = l
}

// SetBackend replaces the configured crypto backend for testing.
func SetBackend(b backend.Backend) {
	cryptoBackend = b
}
