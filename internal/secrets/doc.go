// Package secrets stores lockbox ciphertext on disk and resolves the files
// a user asks to track.
//
// # Objects
//
// Ciphertext is content-addressed: each blob lives at
//
//	.lockbox/objects/<sha256-hex>.gpg
//
// and the manifest refers to it by its "sha256:<hex>" digest. Replacing a
// file's ciphertext therefore never overwrites a blob in place; it writes a
// new blob and repoints the manifest entry. Reads always re-hash the blob,
// so a tampered or truncated object surfaces as a CorruptManifestError.
//
// # Staging
//
// Re-encryption writes its output into .lockbox/staging/<operation-id>/,
// an ObjectStore of the same shape. Staged blobs are adopted into the
// object store only after every planned file succeeded, and the staging
// area is removed once the manifest commit lands.
//
// # File Resolution
//
// ResolveFiles expands paths, directories, and doublestar globs into sorted
// repository-relative paths. The .lockbox and .git directories are never
// matched.
package secrets
