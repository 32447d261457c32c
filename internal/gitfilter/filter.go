package gitfilter

import (
	"context"
	"errors"
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/registry"
	"github.com/PolarWolf314/lockbox/internal/secrets"
)

// Crypto is the subset of backend.Adapter the filter needs.
type Crypto interface {
	Encrypt(ctx context.Context, plaintext []byte, recipients []string) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Filter runs clean and smudge for one repository.
type Filter struct {
	Store   *manifest.Store
	Objects *secrets.ObjectStore
	Crypto  Crypto
	Logger  logger.Logger
}

// CleanResult describes what Clean did.
type CleanResult struct {
	// Reused is true when the stored ciphertext was emitted unchanged.
	Reused bool

	// Tracked is true when path was not tracked before.
	Tracked bool

	Digest           string
	RecipientVersion int
}

// Clean reads plaintext for path from r and writes its ciphertext to w.
// path is the repository-relative, slash-separated manifest key.
func (f *Filter) Clean(ctx context.Context, path string, r io.Reader, w io.Writer) (*CleanResult, error) {
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	ptDigest := secrets.Digest(plaintext)

	unlock, err := f.Store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := f.Store.Load()
	if err != nil {
		return nil, err
	}

	tf, tracked := m.Get(path)
	if tracked && tf.RecipientVersion == m.RecipientVersion && tf.PlaintextDigest == ptDigest {
		ciphertext, err := f.Objects.Get(tf.CiphertextDigest)
		if err != nil {
			return nil, withPath(path, err)
		}
		f.Logger.Debugf("clean %s: unchanged, re-emitting %s", path, tf.CiphertextDigest)
		if _, err := w.Write(ciphertext); err != nil {
			return nil, fmt.Errorf("failed to write ciphertext for %s: %w", path, err)
		}
		return &CleanResult{Reused: true, Digest: tf.CiphertextDigest, RecipientVersion: tf.RecipientVersion}, nil
	}

	live := registry.New(m).ActiveRecipients()
	if len(live.Fingerprints) == 0 {
		return nil, fmt.Errorf("%w: cannot encrypt %s without active members", kerrors.ErrEmptyRecipientSet, path)
	}

	ciphertext, err := f.Crypto.Encrypt(ctx, plaintext, live.Fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt %s: %w", path, err)
	}
	digest, err := f.Objects.Put(ciphertext)
	if err != nil {
		return nil, err
	}

	if tracked {
		err = m.Reencrypted(path, live.Version, digest, ptDigest)
	} else {
		_, err = m.Track(path, live.Version, digest, ptDigest)
	}
	if err != nil {
		return nil, err
	}
	if err := f.Store.Save(m); err != nil {
		return nil, err
	}

	f.Logger.Debugf("clean %s: encrypted for version %d as %s", path, live.Version, digest)
	if _, err := w.Write(ciphertext); err != nil {
		return nil, fmt.Errorf("failed to write ciphertext for %s: %w", path, err)
	}
	return &CleanResult{Tracked: !tracked, Digest: digest, RecipientVersion: live.Version}, nil
}

// Smudge reads ciphertext for path from r and writes the plaintext to w.
// On any failure nothing is written, so git never checks out a partial or
// undecrypted file.
func (f *Filter) Smudge(ctx context.Context, path string, r io.Reader, w io.Writer) error {
	ciphertext, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	plaintext, err := f.Crypto.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", path, err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("failed to write plaintext for %s: %w", path, err)
	}
	return nil
}

func withPath(path string, err error) error {
	var corrupt *kerrors.CorruptManifestError
	if errors.As(err, &corrupt) && corrupt.Path == "" {
		return &kerrors.CorruptManifestError{Path: path, Reason: corrupt.Reason}
	}
	return err
}
