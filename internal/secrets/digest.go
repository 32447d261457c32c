package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DigestPrefix marks the hash algorithm of every digest lockbox stores.
const DigestPrefix = "sha256:"

// Digest returns the "sha256:<hex>" digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// ValidDigest reports whether d is a well-formed digest.
func ValidDigest(d string) bool {
	h, ok := strings.CutPrefix(d, DigestPrefix)
	if !ok || len(h) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(h)
	return err == nil && strings.ToLower(h) == h
}

// DigestHex strips the algorithm prefix, leaving the hex part used in file names.
func DigestHex(d string) string {
	return strings.TrimPrefix(d, DigestPrefix)
}
