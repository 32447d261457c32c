package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/utils"
)

const header = "# Managed by lockbox. Do not edit by hand.\n\n"

// Store persists a Manifest to disk and serialises writers with a lock file.
type Store struct {
	Path         string
	LockPath     string
	LockTimeout  time.Duration
	PollInterval time.Duration
}

// NewStore returns a store for the manifest at path, locked via lockPath.
func NewStore(path, lockPath string, lockTimeout time.Duration) *Store {
	return &Store{
		Path:         path,
		LockPath:     lockPath,
		LockTimeout:  lockTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// Exists reports whether a manifest file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load reads and validates the manifest without taking the lock. The result
// is a consistent snapshot because writers only ever rename a complete file
// into place.
func (s *Store) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s is missing", kerrors.ErrProjectNotInitialized, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Decode(s.Path, data)
}

// Decode parses and validates manifest bytes. name is used in errors.
func Decode(name string, data []byte) (*Manifest, error) {
	m := New()
	if _, err := toml.Decode(string(data), m); err != nil {
		return nil, kerrors.Corrupt(name, "malformed TOML: %v", err)
	}
	if m.Files == nil {
		m.Files = make(map[string]*TrackedFile)
	}
	for p, tf := range m.Files {
		if tf == nil {
			return nil, kerrors.Corrupt(name, "empty entry for %s", p)
		}
		tf.Path = p
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode renders m as TOML. Map keys are sorted by the encoder, so equal
// manifests always encode to equal bytes.
func Encode(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Save validates m and atomically replaces the manifest file. The caller
// must hold the lock.
func (s *Store) Save(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	// #nosec G306 -- the manifest is committed and shared with the team.
	return utils.WriteFileAtomic(s.Path, data, 0644)
}

// Lock acquires the manifest lock and returns its release function.
// It fails with ErrManifestLocked once LockTimeout has elapsed.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	return acquireLock(ctx, s.LockPath, s.LockTimeout, s.PollInterval)
}

// Create writes the first manifest. It fails if one already exists.
func (s *Store) Create(ctx context.Context, m *Manifest) error {
	unlock, err := s.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if s.Exists() {
		return fmt.Errorf("%w: %s exists", kerrors.ErrProjectAlreadyInitialized, s.Path)
	}
	return s.Save(m)
}

// Update runs fn on the current manifest under the lock and persists the
// result. If fn fails, nothing is written.
func (s *Store) Update(ctx context.Context, fn func(*Manifest) error) (*Manifest, error) {
	unlock, err := s.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	if err := s.Save(m); err != nil {
		return nil, err
	}
	return m, nil
}
