package manifest

import (
	"fmt"
	"slices"
	"sort"
	"time"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

// FormatVersion is the manifest schema version written by this build.
const FormatVersion = 1

// Now returns the timestamp recorded on manifest entries. Second precision
// keeps the committed file diff-friendly.
var Now = func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Member is a team member record. Records are never deleted; revocation
// sets RevokedAt.
type Member struct {
	Fingerprint string     `toml:"fingerprint"`
	Name        string     `toml:"name"`
	AddedAt     time.Time  `toml:"added_at"`
	RevokedAt   *time.Time `toml:"revoked_at,omitempty"`
}

// Active reports whether the member may currently decrypt.
func (m Member) Active() bool {
	return m.RevokedAt == nil
}

// RecipientSet is the snapshot of active fingerprints for one registry version.
type RecipientSet struct {
	Version      int      `toml:"version"`
	Fingerprints []string `toml:"fingerprints"`
}

// Contains reports whether fp is in the set.
func (s RecipientSet) Contains(fp string) bool {
	return slices.Contains(s.Fingerprints, fp)
}

// TrackedFile records the committed ciphertext for one managed path.
type TrackedFile struct {
	Path             string    `toml:"-"`
	RecipientVersion int       `toml:"recipient_version"`
	CiphertextDigest string    `toml:"ciphertext_digest"`
	PlaintextDigest  string    `toml:"plaintext_digest,omitempty"`
	TrackedAt        time.Time `toml:"tracked_at"`
	EncryptedAt      time.Time `toml:"encrypted_at"`
}

// Manifest is the committed state of a lockbox repository.
type Manifest struct {
	Format            int                     `toml:"format"`
	RecipientVersion  int                     `toml:"recipient_version"`
	ReconciledVersion int                     `toml:"reconciled_version"`
	Members           []Member                `toml:"members"`
	RecipientSets     []RecipientSet          `toml:"recipient_sets"`
	Files             map[string]*TrackedFile `toml:"files"`
}

// New returns an empty manifest at recipient version 0.
func New() *Manifest {
	return &Manifest{
		Format: FormatVersion,
		Files:  make(map[string]*TrackedFile),
	}
}

// Dirty reports whether the registry changed since the file set was last
// reconciled against it.
func (m *Manifest) Dirty() bool {
	return m.RecipientVersion > m.ReconciledVersion
}

// Track adds a file encrypted for recipient version.
func (m *Manifest) Track(path string, version int, ciphertextDigest, plaintextDigest string) (*TrackedFile, error) {
	if _, ok := m.Files[path]; ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrAlreadyTracked, path)
	}
	now := Now()
	tf := &TrackedFile{
		Path:             path,
		RecipientVersion: version,
		CiphertextDigest: ciphertextDigest,
		PlaintextDigest:  plaintextDigest,
		TrackedAt:        now,
		EncryptedAt:      now,
	}
	if m.Files == nil {
		m.Files = make(map[string]*TrackedFile)
	}
	m.Files[path] = tf
	return tf, nil
}

// Untrack removes a file and returns its last record.
func (m *Manifest) Untrack(path string) (*TrackedFile, error) {
	tf, ok := m.Files[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrUntrackedFile, path)
	}
	delete(m.Files, path)
	return tf, nil
}

// Get returns the record for path.
func (m *Manifest) Get(path string) (*TrackedFile, bool) {
	tf, ok := m.Files[path]
	return tf, ok
}

// Reencrypted points path at new ciphertext for version.
func (m *Manifest) Reencrypted(path string, version int, ciphertextDigest, plaintextDigest string) error {
	tf, ok := m.Files[path]
	if !ok {
		return fmt.Errorf("%w: %s", kerrors.ErrUntrackedFile, path)
	}
	tf.RecipientVersion = version
	tf.CiphertextDigest = ciphertextDigest
	if plaintextDigest != "" {
		tf.PlaintextDigest = plaintextDigest
	}
	tf.EncryptedAt = Now()
	return nil
}

// Paths returns every tracked path in sorted order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// ListStale returns the files encrypted for an older recipient version,
// sorted by path.
func (m *Manifest) ListStale() []*TrackedFile {
	var stale []*TrackedFile
	for _, p := range m.Paths() {
		if tf := m.Files[p]; tf.RecipientVersion < m.RecipientVersion {
			stale = append(stale, tf)
		}
	}
	return stale
}

// RecipientSet returns the retained snapshot for version.
func (m *Manifest) RecipientSet(version int) (RecipientSet, bool) {
	for _, s := range m.RecipientSets {
		if s.Version == version {
			return s, true
		}
	}
	return RecipientSet{}, false
}

// LiveSet returns the snapshot for the live recipient version.
func (m *Manifest) LiveSet() RecipientSet {
	if s, ok := m.RecipientSet(m.RecipientVersion); ok {
		return s
	}
	return RecipientSet{Version: m.RecipientVersion}
}

// PutRecipientSet records or replaces the snapshot for s.Version.
func (m *Manifest) PutRecipientSet(s RecipientSet) {
	for i := range m.RecipientSets {
		if m.RecipientSets[i].Version == s.Version {
			m.RecipientSets[i] = s
			return
		}
	}
	m.RecipientSets = append(m.RecipientSets, s)
	sort.Slice(m.RecipientSets, func(i, j int) bool {
		return m.RecipientSets[i].Version < m.RecipientSets[j].Version
	})
}

// PruneRecipientSets drops snapshots that no tracked file, the live version,
// or any version in extra still refers to.
func (m *Manifest) PruneRecipientSets(extra ...int) int {
	keep := map[int]bool{m.RecipientVersion: true}
	for _, v := range extra {
		keep[v] = true
	}
	for _, tf := range m.Files {
		keep[tf.RecipientVersion] = true
	}
	kept := m.RecipientSets[:0]
	for _, s := range m.RecipientSets {
		if keep[s.Version] {
			kept = append(kept, s)
		}
	}
	removed := len(m.RecipientSets) - len(kept)
	m.RecipientSets = kept
	return removed
}

// ActiveMembers returns members that are not revoked, in the order added.
func (m *Manifest) ActiveMembers() []Member {
	var active []Member
	for _, mem := range m.Members {
		if mem.Active() {
			active = append(active, mem)
		}
	}
	return active
}

// ReferencedObjects returns the set of ciphertext digests that tracked
// files point at.
func (m *Manifest) ReferencedObjects() map[string]bool {
	refs := make(map[string]bool, len(m.Files))
	for _, tf := range m.Files {
		refs[tf.CiphertextDigest] = true
	}
	return refs
}

// Clone returns a deep copy, used to roll back a failed in-memory update.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{
		Format:            m.Format,
		RecipientVersion:  m.RecipientVersion,
		ReconciledVersion: m.ReconciledVersion,
		Members:           make([]Member, len(m.Members)),
		RecipientSets:     make([]RecipientSet, len(m.RecipientSets)),
		Files:             make(map[string]*TrackedFile, len(m.Files)),
	}
	for i, mem := range m.Members {
		if mem.RevokedAt != nil {
			t := *mem.RevokedAt
			mem.RevokedAt = &t
		}
		c.Members[i] = mem
	}
	for i, s := range m.RecipientSets {
		c.RecipientSets[i] = RecipientSet{Version: s.Version, Fingerprints: slices.Clone(s.Fingerprints)}
	}
	for p, tf := range m.Files {
		cp := *tf
		c.Files[p] = &cp
	}
	return c
}
