// Package errors provides typed error values for the lockbox application.
//
// Using sentinel errors allows callers to handle specific error conditions
// programmatically with errors.Is() rather than string matching. This makes
// error handling more robust and refactoring-safe.
//
// # Error Categories
//
// Errors are grouped by category:
//
//   - Registry errors: membership misuse (ErrDuplicateMember, ErrUnknownMember)
//   - Manifest errors: tracking misuse and contention (ErrAlreadyTracked,
//     ErrUntrackedFile, ErrManifestLocked)
//   - Authorization errors: (ErrEmptyRecipientSet, ErrUnauthorizedDecrypt)
//   - Integrity errors: (ErrCorruptManifest, CorruptManifestError)
//   - Bulk errors: (ErrPartialReencryption, PartialReencryptionError)
//   - Backend availability: (ErrBackendTimeout, ErrBackendUnavailable)
//
// Authorization and integrity errors are never downgraded or retried.
// Availability errors are transient; see IsTransient.
//
// # Usage
//
// Return errors from internal packages:
//
//	if m.Files[path] != nil {
//	    return fmt.Errorf("%w: %s", errors.ErrAlreadyTracked, path)
//	}
//
// Handle errors in the CLI layer:
//
//	_, err := workflows.Reencrypt(ctx, opts)
//	var partial *kerrors.PartialReencryptionError
//	if errors.As(err, &partial) {
//	    // list partial.Failed
//	}
//
// ExitCode maps every category to a distinct non-zero process exit code.
package errors
