// Package gitfilter implements the lockbox git filter driver.
//
// Git runs the clean filter when content is staged and the smudge filter
// when it is checked out:
//
//	[filter "lockbox"]
//		clean = lockbox filter clean %f
//		smudge = lockbox filter smudge %f
//		required = true
//
// Clean turns plaintext into ciphertext and keeps the manifest in step.
// When the plaintext has not changed since it was last encrypted for the
// live recipient set, clean re-emits the stored ciphertext byte for byte,
// so git never sees a spurious modification. Smudge turns ciphertext back
// into plaintext and fails without writing anything when it cannot.
package gitfilter
