package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/ui"
)

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// IMPORTANT: spinner.FinalMSG values do NOT need trailing newlines. The cleanup function
// automatically calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string, verbose bool) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		// Ensure log output is discarded unless in verbose mode.
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stderr)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			// Clear FinalMSG so s.Stop() doesn't print it.
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}

		// Print final message to stdout (for tests to capture).
		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// setSuffix updates a running spinner's message.
func setSuffix(s *spinner.Spinner, message string) {
	s.Lock()
	s.Suffix = " " + message
	s.Unlock()
}

// fail shows err as the spinner's final message and marks it reported.
func fail(s *spinner.Spinner, err error) error {
	s.FinalMSG = formatError(err)
	return &reportedError{err: err}
}

// formatError renders an error with a hint for the categories a user can act on.
func formatError(err error) string {
	var partial *kerrors.PartialReencryptionError
	var corrupt *kerrors.CorruptManifestError

	switch {
	case errors.Is(err, kerrors.ErrProjectNotInitialized):
		return ui.ErrorLine("Lockbox has not been initialized") + "\n" +
			ui.HintLine("Run "+ui.Code.Sprint("lockbox init")+" first")

	case errors.Is(err, kerrors.ErrProjectAlreadyInitialized):
		return ui.ErrorLine("Lockbox has already been initialized in this repository")

	case errors.Is(err, kerrors.ErrNotARepository):
		return ui.ErrorLine("Not inside a git repository") + "\n" +
			ui.HintLine("Run "+ui.Code.Sprint("git init")+" first")

	case errors.As(err, &corrupt):
		return ui.ErrorLine("Integrity check failed: "+err.Error()) + "\n" +
			ui.HintLine("Nothing was changed. Restore "+ui.Path.Sprint(".lockbox/")+" from git before retrying")

	case errors.As(err, &partial):
		var b strings.Builder
		b.WriteString(ui.ErrorLine(fmt.Sprintf("Re-encryption incomplete: %d file(s) failed, %d staged",
			len(partial.Failed), partial.Staged)))
		for _, p := range partial.Paths() {
			fmt.Fprintf(&b, "\n  %s %s: %v", ui.Error.Sprint("✗"), ui.Path.Sprint(p), partial.Failed[p])
		}
		b.WriteString("\n" + ui.HintLine("Committed state is unchanged. Fix the failures and run "+
			ui.Code.Sprint("lockbox reencrypt")+" to resume"))
		return b.String()

	case errors.Is(err, kerrors.ErrManifestLocked):
		return ui.ErrorLine("Another lockbox command is running in this repository") + "\n" +
			ui.HintLine("Wait for it to finish, then try again")

	case errors.Is(err, kerrors.ErrEmptyRecipientSet):
		return ui.ErrorLine("No active members to encrypt for: "+err.Error()) + "\n" +
			ui.HintLine("Run "+ui.Code.Sprint("lockbox add-member")+" first")

	case errors.Is(err, kerrors.ErrUnauthorizedDecrypt):
		return ui.ErrorLine("None of your keys can decrypt this file: "+err.Error()) + "\n" +
			ui.HintLine("Ask an active member to add you and run "+ui.Code.Sprint("lockbox reencrypt"))

	case errors.Is(err, kerrors.ErrPublicKeyNotFound):
		return ui.ErrorLine(err.Error()) + "\n" +
			ui.HintLine("Pass the member's exported public key with "+ui.Flag.Sprint("--key-file"))

	case errors.Is(err, kerrors.ErrKeyNotFound):
		return ui.ErrorLine(err.Error()) + "\n" +
			ui.HintLine("Run "+ui.Code.Sprint("lockbox key list")+" to see your keys")

	case errors.Is(err, kerrors.ErrBackendTimeout), errors.Is(err, kerrors.ErrBackendUnavailable):
		return ui.ErrorLine("Crypto backend failed: "+err.Error()) + "\n" +
			ui.HintLine("The command can be retried safely")

	default:
		return ui.ErrorLine(err.Error())
	}
}
