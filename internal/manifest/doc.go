// Package manifest holds the committed record of a lockbox repository: the
// member registry history, the retained recipient-set snapshots, and the
// tracked files with the digests of their current ciphertext.
//
// The manifest is stored as TOML at .lockbox/manifest.toml. Writers hold
// .lockbox/manifest.lock and replace the file atomically (temp file, fsync,
// rename, directory fsync), so readers never see a partial manifest and a
// crashed writer leaves the previous one intact.
//
// Every load is validated. A manifest that references a recipient set it
// does not retain, carries a malformed digest, or disagrees with its own
// member list is reported as a CorruptManifestError and never repaired.
package manifest
