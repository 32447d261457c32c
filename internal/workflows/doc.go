// Package workflows provides high-level orchestration for lockbox commands.
//
// Workflows coordinate the engine packages (manifest, registry, backend,
// reencrypt, gitfilter) and the ambient ones (configs, audit) to implement
// complete user-facing features. Each workflow handles a single command's
// business logic, independent of CLI concerns like flag parsing, spinners,
// and output formatting.
//
// # Design Philosophy
//
// The cmd/ package should be a thin layer that:
//   - Parses command-line flags and arguments
//   - Calls the appropriate workflow function
//   - Formats the result for display
//
// Workflows handle everything else:
//   - Locating the project and loading its configuration
//   - Building the crypto backend
//   - Performing the core operation under the manifest lock
//   - Recording audit trail entries
//
// # Available Workflows
//
//   - Init: creates .lockbox/ at the git root and installs the filter driver
//   - AddMember, RevokeMember, Members: manage the recipient registry
//   - Track, Untrack: manage the tracked file set
//   - Reencrypt: brings every tracked file up to the live recipient set
//   - Status, Log: report project state and the audit trail
//   - KeyGenerate, KeyList: manage the caller's personal keys
//   - FilterClean, FilterSmudge: the git filter driver entry points
//
// # Backends
//
// Every workflow that touches ciphertext accepts a backend.Backend in its
// options. When none is given, the backend named by the runtime
// configuration is built, which lets tests inject the in-memory backend.
//
// # Error Handling
//
// Workflows return typed errors from the internal/errors package, allowing
// the CLI layer to provide appropriate user-facing messages without string
// matching:
//
//	result, err := workflows.Reencrypt(ctx, opts)
//	if errors.Is(err, kerrors.ErrManifestLocked) {
//	    // Tell the user another lockbox command is running
//	}
//
// # Context Usage
//
// All workflow functions accept a context.Context as their first parameter.
// Cancelling it aborts lock waits and backend calls.
package workflows
