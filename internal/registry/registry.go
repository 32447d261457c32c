// Package registry manages team membership on top of a loaded manifest.
//
// A Registry wraps one manifest for the duration of one locked update.
// All mutations made through the same Registry share a single recipient
// version bump, so a batch of changes (for example every --member passed
// to init) produces exactly one new version. The registry never touches
// ciphertext; it only marks the manifest dirty for the re-encryption
// coordinator to reconcile.
package registry

import (
	"encoding/hex"
	"fmt"
	"strings"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/manifest"
)

// Fingerprint length bounds in hex characters: a 64-bit key id up to a
// 256-bit fingerprint.
const (
	minFingerprintLen = 16
	maxFingerprintLen = 64
)

// NormalizeFingerprint strips spaces and an optional 0x prefix and
// upper-cases fp. It fails with ErrInvalidFingerprint if the result is not
// 16 to 64 hex characters.
func NormalizeFingerprint(fp string) (string, error) {
	s := strings.ReplaceAll(strings.TrimSpace(fp), " ", "")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	s = strings.ToUpper(s)
	if len(s) < minFingerprintLen || len(s) > maxFingerprintLen || len(s)%2 != 0 {
		return "", fmt.Errorf("%w: %q", kerrors.ErrInvalidFingerprint, fp)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("%w: %q", kerrors.ErrInvalidFingerprint, fp)
	}
	return s, nil
}

// Registry is the membership view of one manifest transaction.
type Registry struct {
	m      *manifest.Manifest
	bumped bool
}

// New wraps m. Mutations are applied to m in place.
func New(m *manifest.Manifest) *Registry {
	return &Registry{m: m}
}

// AddMember appends an active member record. Adding a fingerprint that
// belongs to a revoked member creates a fresh record; the old one stays.
func (r *Registry) AddMember(fingerprint, name string) (manifest.Member, error) {
	fp, err := NormalizeFingerprint(fingerprint)
	if err != nil {
		return manifest.Member{}, err
	}
	if _, ok := r.findActive(fp); ok {
		return manifest.Member{}, fmt.Errorf("%w: %s", kerrors.ErrDuplicateMember, fp)
	}

	mem := manifest.Member{
		Fingerprint: fp,
		Name:        strings.TrimSpace(name),
		AddedAt:     manifest.Now(),
	}
	r.m.Members = append(r.m.Members, mem)
	r.changed()
	return mem, nil
}

// RevokeMember marks the active record for fingerprint revoked. Revoking a
// member that is already revoked changes nothing and reports false.
func (r *Registry) RevokeMember(fingerprint string) (manifest.Member, bool, error) {
	fp, err := NormalizeFingerprint(fingerprint)
	if err != nil {
		return manifest.Member{}, false, err
	}

	if i, ok := r.findActive(fp); ok {
		now := manifest.Now()
		r.m.Members[i].RevokedAt = &now
		r.changed()
		return r.m.Members[i], true, nil
	}

	for i := len(r.m.Members) - 1; i >= 0; i-- {
		if sameKey(r.m.Members[i].Fingerprint, fp) {
			return r.m.Members[i], false, nil
		}
	}
	return manifest.Member{}, false, fmt.Errorf("%w: %s", kerrors.ErrUnknownMember, fp)
}

// ActiveRecipients returns the live recipient set.
func (r *Registry) ActiveRecipients() manifest.RecipientSet {
	return r.m.LiveSet()
}

// Members returns every member record, revoked ones included, in the order
// they were added.
func (r *Registry) Members() []manifest.Member {
	out := make([]manifest.Member, len(r.m.Members))
	copy(out, r.m.Members)
	return out
}

// Lookup returns the most recent record for fingerprint.
func (r *Registry) Lookup(fingerprint string) (manifest.Member, bool) {
	fp, err := NormalizeFingerprint(fingerprint)
	if err != nil {
		return manifest.Member{}, false
	}
	for i := len(r.m.Members) - 1; i >= 0; i-- {
		if sameKey(r.m.Members[i].Fingerprint, fp) {
			return r.m.Members[i], true
		}
	}
	return manifest.Member{}, false
}

// Version returns the live recipient version.
func (r *Registry) Version() int {
	return r.m.RecipientVersion
}

// Changed reports whether this transaction advanced the version.
func (r *Registry) Changed() bool {
	return r.bumped
}

func (r *Registry) findActive(fp string) (int, bool) {
	for i, mem := range r.m.Members {
		if sameKey(mem.Fingerprint, fp) && mem.Active() {
			return i, true
		}
	}
	return -1, false
}

// sameKey reports whether two normalized fingerprints name the same key.
// A 64-bit key id matches the full fingerprint it ends with.
func sameKey(a, b string) bool {
	if len(a) < len(b) {
		a, b = b, a
	}
	return strings.HasSuffix(a, b)
}

// changed bumps the version once per transaction and refreshes the live
// snapshot from the active members.
func (r *Registry) changed() {
	if !r.bumped {
		r.m.RecipientVersion++
		r.bumped = true
	}
	var fps []string
	for _, mem := range r.m.ActiveMembers() {
		fps = append(fps, mem.Fingerprint)
	}
	r.m.PutRecipientSet(manifest.RecipientSet{Version: r.m.RecipientVersion, Fingerprints: fps})
}
