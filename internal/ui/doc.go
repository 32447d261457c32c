// Package ui provides semantic text formatting for CLI output.
//
// This package defines formatters for different types of content (code,
// paths, fingerprints, errors, etc.) that render appropriately based on
// terminal capabilities. When colors are available, content is colorized.
// When NO_COLOR is set or the terminal doesn't support colors, text-based
// decorations (backticks, quotes) are used instead.
//
// # Semantic Formatters
//
//	ui.Code.Sprint("lockbox reencrypt")         // Commands and code
//	ui.Path.Sprint(".lockbox/manifest.toml")    // File paths
//	ui.Fingerprint.Sprint("9F3C...")            // Key fingerprints
//	ui.Success.Sprint("✓")                      // Success indicators
//	ui.Error.Sprint("✗")                        // Error indicators
//	ui.Warning.Sprint("⚠")                      // Warnings
//	ui.Info.Sprint("→")                         // Informational hints
//	ui.Highlight.Sprint("alice")                // User values
//	ui.Muted.Sprint("revoked")                  // De-emphasized text
//
// SuccessLine, ErrorLine, WarningLine and HintLine prefix a message with
// the matching indicator.
//
// # Color Behavior
//
// Colors are disabled when:
//   - NO_COLOR environment variable is set (any value)
//   - Terminal doesn't support colors (TERM=dumb, not a TTY)
//
// When colors are disabled, formatters apply text decorations:
//   - Code: `backticks`
//   - Highlight: 'single quotes'
//   - Fingerprint: <angle brackets>
//   - Muted: (parentheses)
//   - Others: no decoration (self-evident from context)
package ui
