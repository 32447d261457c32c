// Package reencrypt brings every tracked file up to the live recipient
// set, atomically.
//
// A run is a state machine:
//
//	IDLE -> PLANNING -> EXECUTING -> COMMITTING -> IDLE
//
// with RESUMING entered first when the operation log shows an earlier run
// did not finish. The manifest lock is held for the whole run.
//
// PLANNING lists the stale files and writes a begin record. EXECUTING
// decrypts each file, verifies it against the recorded digests, encrypts
// it for the live set into a staging area, and logs a staged record. Files
// are processed by a bounded worker pool and a failing file never stops
// the others. COMMITTING runs only when every planned file is staged: the
// staged blobs are adopted into the object store and a single manifest
// replace repoints every file at once. Anything short of that leaves the
// committed manifest untouched and the staged work in place for the next
// run to pick up.
package reencrypt
