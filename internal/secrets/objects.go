package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/utils"
)

// ObjectExt is the file extension of stored ciphertext.
const ObjectExt = ".gpg"

// ObjectStore is a directory of content-addressed ciphertext blobs named
// <hex>.gpg. The committed store and each staging area are ObjectStores.
type ObjectStore struct {
	Dir string
}

// NewObjectStore returns a store rooted at dir.
func NewObjectStore(dir string) *ObjectStore {
	return &ObjectStore{Dir: dir}
}

// Path returns the file name for digest.
func (s *ObjectStore) Path(digest string) string {
	return filepath.Join(s.Dir, DigestHex(digest)+ObjectExt)
}

// Put stores data and returns its digest. Storing a blob that is already
// present is a no-op.
func (s *ObjectStore) Put(data []byte) (string, error) {
	digest := Digest(data)
	if s.Verify(digest) == nil {
		return digest, nil
	}
	if err := utils.WriteFileAtomic(s.Path(digest), data, 0644); err != nil {
		return "", fmt.Errorf("failed to store object %s: %w", digest, err)
	}
	return digest, nil
}

// Get reads the blob for digest and checks that its content still hashes
// to digest. A mismatch is an integrity failure.
func (s *ObjectStore) Get(digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, kerrors.Corrupt("", "malformed digest %q", digest)
	}
	data, err := os.ReadFile(s.Path(digest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, kerrors.Corrupt("", "object %s is missing", digest)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", digest, err)
	}
	if got := Digest(data); got != digest {
		return nil, kerrors.Corrupt("", "object %s has digest %s", digest, got)
	}
	return data, nil
}

// Has reports whether a blob named digest exists, without verifying it.
func (s *ObjectStore) Has(digest string) bool {
	_, err := os.Stat(s.Path(digest))
	return err == nil
}

// Verify checks that digest is present and intact.
func (s *ObjectStore) Verify(digest string) error {
	_, err := s.Get(digest)
	return err
}

// Adopt moves the blob for digest from another store into s. If s already
// holds an intact copy the source copy is simply removed.
func (s *ObjectStore) Adopt(from *ObjectStore, digest string) error {
	if s.Verify(digest) == nil {
		_ = os.Remove(from.Path(digest))
		return nil
	}
	if err := from.Verify(digest); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.Dir, err)
	}
	if err := os.Rename(from.Path(digest), s.Path(digest)); err != nil {
		return fmt.Errorf("failed to promote object %s: %w", digest, err)
	}
	return utils.SyncDir(s.Dir)
}

// List returns the digests of every blob in the store, sorted.
func (s *ObjectStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.Dir, err)
	}

	var digests []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ObjectExt) {
			continue
		}
		d := DigestPrefix + strings.TrimSuffix(name, ObjectExt)
		if ValidDigest(d) {
			digests = append(digests, d)
		}
	}
	sort.Strings(digests)
	return digests, nil
}

// Prune removes every blob whose digest is not in keep and returns how many
// were removed.
func (s *ObjectStore) Prune(keep map[string]bool) (int, error) {
	digests, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range digests {
		if keep[d] {
			continue
		}
		if err := os.Remove(s.Path(d)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to prune object %s: %w", d, err)
		}
		removed++
	}
	return removed, nil
}

// RemoveAll deletes the store directory. Used to discard staging areas.
func (s *ObjectStore) RemoveAll() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.Dir, err)
	}
	return nil
}
