package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Staging holds one ObjectStore per in-flight re-encryption operation under
// .lockbox/staging/<operation-id>/.
type Staging struct {
	Dir string
}

// NewStaging returns the staging root at dir.
func NewStaging(dir string) *Staging {
	return &Staging{Dir: dir}
}

// Area returns the staging store for an operation.
func (s *Staging) Area(opID string) *ObjectStore {
	return NewObjectStore(filepath.Join(s.Dir, opID))
}

// Operations lists the operation ids that have a staging area.
func (s *Staging) Operations() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.Dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Discard removes every staging area except keep (which may be empty).
func (s *Staging) Discard(keep string) error {
	ids, err := s.Operations()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == keep {
			continue
		}
		if err := s.Area(id).RemoveAll(); err != nil {
			return err
		}
	}
	return nil
}
