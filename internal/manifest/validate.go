package manifest

import (
	"slices"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/secrets"
)

// Validate checks the structural invariants of m. Every violation is a
// CorruptManifestError; nothing is repaired.
func (m *Manifest) Validate() error {
	if m.Format != FormatVersion {
		return kerrors.Corrupt("", "unsupported manifest format %d", m.Format)
	}
	if m.RecipientVersion < 0 || m.ReconciledVersion < 0 {
		return kerrors.Corrupt("", "negative recipient version")
	}
	if m.ReconciledVersion > m.RecipientVersion {
		return kerrors.Corrupt("", "reconciled version %d is ahead of recipient version %d",
			m.ReconciledVersion, m.RecipientVersion)
	}

	active := make(map[string]bool)
	var activeOrder []string
	for _, mem := range m.Members {
		if mem.Fingerprint == "" {
			return kerrors.Corrupt("", "member %q has no fingerprint", mem.Name)
		}
		if !mem.Active() {
			continue
		}
		if active[mem.Fingerprint] {
			return kerrors.Corrupt("", "fingerprint %s is active more than once", mem.Fingerprint)
		}
		active[mem.Fingerprint] = true
		activeOrder = append(activeOrder, mem.Fingerprint)
	}

	seen := make(map[int]bool)
	for _, s := range m.RecipientSets {
		if seen[s.Version] {
			return kerrors.Corrupt("", "recipient set %d is recorded twice", s.Version)
		}
		seen[s.Version] = true
		if s.Version > m.RecipientVersion || s.Version < 1 {
			return kerrors.Corrupt("", "recipient set %d is outside 1..%d", s.Version, m.RecipientVersion)
		}
	}

	if m.RecipientVersion > 0 {
		live, ok := m.RecipientSet(m.RecipientVersion)
		if !ok {
			return kerrors.Corrupt("", "live recipient set %d is missing", m.RecipientVersion)
		}
		if !slices.Equal(live.Fingerprints, activeOrder) {
			return kerrors.Corrupt("", "live recipient set %d does not match the active members", m.RecipientVersion)
		}
	} else if len(activeOrder) > 0 {
		return kerrors.Corrupt("", "active members recorded at recipient version 0")
	}

	for path, tf := range m.Files {
		if path == "" {
			return kerrors.Corrupt("", "tracked file with empty path")
		}
		if !secrets.ValidDigest(tf.CiphertextDigest) {
			return kerrors.Corrupt(path, "malformed ciphertext digest %q", tf.CiphertextDigest)
		}
		if tf.PlaintextDigest != "" && !secrets.ValidDigest(tf.PlaintextDigest) {
			return kerrors.Corrupt(path, "malformed plaintext digest %q", tf.PlaintextDigest)
		}
		if tf.RecipientVersion < 1 || tf.RecipientVersion > m.RecipientVersion {
			return kerrors.Corrupt(path, "recipient version %d is outside 1..%d", tf.RecipientVersion, m.RecipientVersion)
		}
		if !seen[tf.RecipientVersion] {
			return kerrors.Corrupt(path, "recipient set %d is not retained", tf.RecipientVersion)
		}
	}

	return nil
}
