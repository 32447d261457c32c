// Package utils provides shared utility functions for the lockbox application.
//
// # Filesystem Utilities
//
//   - FindProjectLockboxRoot: walks up directories to find .lockbox
//   - WriteFileAtomic: temp file, fsync, rename, directory fsync
//   - FormatPaths: formats file paths for human-readable output
//
// # System Utilities
//
//   - GetUsername: returns the current system username
//
// # I/O and Terminal Utilities
//
//   - ReadStdin: reads piped data from standard input
//   - ReadPassphraseFromTTY: reads a hidden passphrase from the controlling terminal
//   - IsTerminal, IsTTYAvailable: terminal detection
package utils
