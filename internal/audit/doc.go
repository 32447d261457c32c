// Package audit provides audit trail logging for lockbox operations.
//
// Every mutating operation (init, add-member, revoke-member, track,
// untrack, reencrypt) is recorded in a project-level audit log that is
// committed with the repository, so the team can see who changed access
// and when.
//
// # Log Format
//
// The audit log is stored as JSON Lines (one JSON object per line) at:
//
//	.lockbox/audit.jsonl
//
// Each entry contains:
//   - Timestamp (RFC3339 with microseconds, UTC)
//   - Acting user (git user.email, falling back to the OS username)
//   - Operation name
//   - Operation-specific details (files, fingerprint, recipient version)
//
// # Usage
//
//	entry := audit.LogWithUser(audit.OpRevokeMember)
//	entry.Fingerprint = fp
//	audit.Log(entry)
//
// # Failure Handling
//
// Audit logging is best-effort. If logging fails (permissions, disk full,
// etc.), the operation continues without error.
//
// # Reading Logs
//
// Use ReadEntries() to parse the audit log for display or analysis.
// Malformed entries are silently skipped to handle partial writes.
package audit
