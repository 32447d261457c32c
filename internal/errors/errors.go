package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Registry errors indicate misuse of the team member registry.
var (
	// ErrDuplicateMember indicates the fingerprint already belongs to an active member.
	ErrDuplicateMember = errors.New("member is already active")

	// ErrUnknownMember indicates the fingerprint was never added to the registry.
	ErrUnknownMember = errors.New("unknown member")

	// ErrInvalidFingerprint indicates a fingerprint is not a hex key fingerprint.
	ErrInvalidFingerprint = errors.New("invalid key fingerprint")

	// ErrPublicKeyNotFound indicates a member's public key could not be located.
	ErrPublicKeyNotFound = errors.New("public key not found")
)

// Manifest errors indicate misuse of, or contention on, the manifest.
var (
	// ErrAlreadyTracked indicates the path is already tracked.
	ErrAlreadyTracked = errors.New("file is already tracked")

	// ErrUntrackedFile indicates the path is not tracked.
	ErrUntrackedFile = errors.New("file is not tracked")

	// ErrManifestLocked indicates another process holds the manifest lock.
	ErrManifestLocked = errors.New("manifest is locked by another process")

	// ErrCorruptManifest indicates a digest mismatch or malformed manifest state.
	ErrCorruptManifest = errors.New("manifest is corrupt")
)

// Cryptographic authorization errors.
var (
	// ErrEmptyRecipientSet indicates an encryption was requested for nobody.
	ErrEmptyRecipientSet = errors.New("recipient set is empty")

	// ErrUnauthorizedDecrypt indicates none of the caller's keys can decrypt the ciphertext.
	ErrUnauthorizedDecrypt = errors.New("not authorized to decrypt")

	// ErrInvalidCiphertext indicates the input is not a lockbox ciphertext.
	ErrInvalidCiphertext = errors.New("input is not lockbox ciphertext")
)

// Backend availability errors. Both are transient.
var (
	// ErrBackendTimeout indicates a backend call exceeded its time budget.
	ErrBackendTimeout = errors.New("crypto backend timed out")

	// ErrBackendUnavailable indicates the backend could not be reached or used.
	ErrBackendUnavailable = errors.New("crypto backend unavailable")
)

// ErrPartialReencryption indicates a bulk re-encryption left some files unfinished.
var ErrPartialReencryption = errors.New("re-encryption incomplete")

// Project state errors indicate issues with project configuration or initialization.
var (
	// ErrProjectNotInitialized indicates the repository has no .lockbox directory.
	ErrProjectNotInitialized = errors.New("lockbox has not been initialized")

	// ErrProjectAlreadyInitialized indicates the repository already has a .lockbox directory.
	ErrProjectAlreadyInitialized = errors.New("lockbox has already been initialized")

	// ErrInvalidProjectConfig indicates .lockbox/config.toml is malformed.
	ErrInvalidProjectConfig = errors.New("project configuration is invalid")

	// ErrNotARepository indicates the working directory is not inside a git repository.
	ErrNotARepository = errors.New("not a git repository")
)

// File errors indicate issues with file discovery or access.
var (
	// ErrNoFilesFound indicates no files matched the provided patterns.
	ErrNoFilesFound = errors.New("no matching files found")

	// ErrFileNotFound indicates a specific file could not be located.
	ErrFileNotFound = errors.New("file not found")
)

// ErrKeyNotFound indicates the caller's keyring has no key with the fingerprint.
var ErrKeyNotFound = errors.New("key not found in keyring")

// ErrInvalidDateFormat indicates a date flag is not YYYY-MM-DD.
var ErrInvalidDateFormat = errors.New("invalid date format")

// CorruptManifestError describes an integrity failure. It is fatal: lockbox
// never repairs it, since a silent repair could hide tampering.
type CorruptManifestError struct {
	// Path is the affected tracked path, or the manifest file itself.
	Path string

	// Reason describes the mismatch.
	Reason string
}

func (e *CorruptManifestError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", ErrCorruptManifest, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrCorruptManifest, e.Path, e.Reason)
}

func (e *CorruptManifestError) Unwrap() error {
	return ErrCorruptManifest
}

// Corrupt returns a CorruptManifestError for path.
func Corrupt(path, format string, args ...any) error {
	return &CorruptManifestError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// PartialReencryptionError lists the files that prevented a commit.
// Files that succeeded stay staged for the next run.
type PartialReencryptionError struct {
	// Failed maps each failed path to its final error.
	Failed map[string]error

	// Staged is the number of files that are staged and waiting.
	Staged int
}

// Paths returns the failed paths in sorted order.
func (e *PartialReencryptionError) Paths() []string {
	paths := make([]string, 0, len(e.Failed))
	for p := range e.Failed {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (e *PartialReencryptionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d file(s) failed, %d staged", ErrPartialReencryption, len(e.Failed), e.Staged)
	for _, p := range e.Paths() {
		fmt.Fprintf(&b, "\n  %s: %v", p, e.Failed[p])
	}
	return b.String()
}

// Unwrap exposes the sentinel plus every per-file cause, so errors.Is can
// find an authorization or integrity failure inside a partial run.
func (e *PartialReencryptionError) Unwrap() []error {
	errs := []error{ErrPartialReencryption}
	for _, p := range e.Paths() {
		errs = append(errs, e.Failed[p])
	}
	return errs
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorizedDecrypt) || errors.Is(err, ErrCorruptManifest) ||
		errors.Is(err, ErrEmptyRecipientSet) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrBackendTimeout) ||
		errors.Is(err, ErrBackendUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Process exit codes per error category.
const (
	ExitOK             = 0
	ExitGeneric        = 1
	ExitRegistry       = 2
	ExitManifest       = 3
	ExitLocked         = 4
	ExitAuthorization  = 5
	ExitCorrupt        = 6
	ExitPartial        = 7
	ExitBackend        = 8
	ExitNotInitialized = 9
)

// ExitCode maps err onto a process exit code. Integrity wins over everything
// else, since a partial run that hit corruption must be treated as corrupt.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCorruptManifest):
		return ExitCorrupt
	case errors.Is(err, ErrUnauthorizedDecrypt), errors.Is(err, ErrEmptyRecipientSet),
		errors.Is(err, ErrInvalidCiphertext):
		return ExitAuthorization
	case errors.Is(err, ErrPartialReencryption):
		return ExitPartial
	case errors.Is(err, ErrManifestLocked):
		return ExitLocked
	case errors.Is(err, ErrDuplicateMember), errors.Is(err, ErrUnknownMember),
		errors.Is(err, ErrInvalidFingerprint), errors.Is(err, ErrPublicKeyNotFound):
		return ExitRegistry
	case errors.Is(err, ErrAlreadyTracked), errors.Is(err, ErrUntrackedFile),
		errors.Is(err, ErrNoFilesFound), errors.Is(err, ErrFileNotFound):
		return ExitManifest
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, ErrBackendUnavailable):
		return ExitBackend
	case errors.Is(err, ErrProjectNotInitialized), errors.Is(err, ErrProjectAlreadyInitialized),
		errors.Is(err, ErrNotARepository), errors.Is(err, ErrInvalidProjectConfig):
		return ExitNotInitialized
	default:
		return ExitGeneric
	}
}
