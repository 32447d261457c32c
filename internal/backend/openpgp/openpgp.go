// Package openpgp is the OpenPGP crypto backend.
//
// Team public keys are armored files committed at .lockbox/keys/<FP>.asc.
// The caller's private keys are armored files in a keyring directory
// (LOCKBOX_KEYRING, default ~/.lockbox/keyring). Ciphertext is an armored
// PGP MESSAGE, so any OpenPGP tool holding a recipient key can read it.
package openpgp

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"
	pgperrors "golang.org/x/crypto/openpgp/errors"
	"golang.org/x/crypto/openpgp/packet"
	_ "golang.org/x/crypto/ripemd160"

	"github.com/PolarWolf314/lockbox/internal/backend"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/utils"
)

const (
	messageType = "PGP MESSAGE"
	keyExt      = ".asc"
	rsaBits     = 3072
)

// PassphraseFunc returns the passphrase for the key with the given
// fingerprint. It must give up once ctx is done.
type PassphraseFunc func(ctx context.Context, fingerprint string) ([]byte, error)

// Options configures a Backend.
type Options struct {
	// KeysDir holds the team's public keys.
	KeysDir string

	// KeyringDir holds the caller's private keys.
	KeyringDir string

	// Passphrase unlocks protected private keys. Defaults to a TTY prompt.
	Passphrase PassphraseFunc
}

// Backend implements backend.Backend with OpenPGP.
type Backend struct {
	opts   Options
	config *packet.Config

	mu       sync.Mutex
	secring  openpgp.EntityList
	unlocked bool
}

var (
	_ backend.Backend      = (*Backend)(nil)
	_ backend.KeyPublisher = (*Backend)(nil)
	_ backend.KeyExporter  = (*Backend)(nil)
	_ backend.KeyManager   = (*Backend)(nil)
)

// New returns an OpenPGP backend.
func New(opts Options) *Backend {
	if opts.Passphrase == nil {
		opts.Passphrase = promptPassphrase
	}
	return &Backend{
		opts: opts,
		config: &packet.Config{
			DefaultCipher:          packet.CipherAES256,
			DefaultCompressionAlgo: packet.CompressionZLIB,
			RSABits:                rsaBits,
		},
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string {
	return "openpgp"
}

// Encrypt implements backend.Backend.
func (b *Backend) Encrypt(ctx context.Context, plaintext []byte, recipients []string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, kerrors.ErrEmptyRecipientSet
	}

	to := make([]*openpgp.Entity, 0, len(recipients))
	for _, fp := range recipients {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := b.publicKey(fp)
		if err != nil {
			return nil, err
		}
		to = append(to, e)
	}

	var buf bytes.Buffer
	armored, err := armor.Encode(&buf, messageType, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start armor: %w", err)
	}
	w, err := openpgp.Encrypt(armored, to, nil, &openpgp.FileHints{IsBinary: true}, b.config)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to encrypt: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish armor: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt implements backend.Backend.
func (b *Backend) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	body, err := dearmor(ciphertext)
	if err != nil {
		return nil, err
	}

	keyring, err := b.privateKeys(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := func([]openpgp.Key, bool) ([]byte, error) {
		return nil, fmt.Errorf("%w: private key is still locked", kerrors.ErrUnauthorizedDecrypt)
	}
	md, err := openpgp.ReadMessage(body, keyring, prompt, b.config)
	if err != nil {
		return nil, mapError(err)
	}
	plaintext, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		return nil, mapError(err)
	}
	return plaintext, nil
}

// PublishKey implements backend.KeyPublisher. Only the public part of the
// matching entity is written, even if armored also carries private keys.
func (b *Backend) PublishKey(_ context.Context, fingerprint string, armored []byte) (backend.KeyInfo, error) {
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(armored))
	if err != nil {
		return backend.KeyInfo{}, fmt.Errorf("%w: cannot parse key: %v", kerrors.ErrPublicKeyNotFound, err)
	}
	e := find(entities, fingerprint)
	if e == nil {
		return backend.KeyInfo{}, fmt.Errorf("%w: %s is not in the supplied key", kerrors.ErrPublicKeyNotFound, fingerprint)
	}

	data, err := armorPublic(e)
	if err != nil {
		return backend.KeyInfo{}, err
	}
	info := keyInfo(e)
	// #nosec G306 -- public keys are committed with the repository.
	if err := utils.WriteFileAtomic(filepath.Join(b.opts.KeysDir, info.Fingerprint+keyExt), data, 0644); err != nil {
		return backend.KeyInfo{}, err
	}
	info.HasPrivate = false
	return info, nil
}

// ExportPublicKey implements backend.KeyExporter from the caller's keyring.
func (b *Backend) ExportPublicKey(_ context.Context, fingerprint string) ([]byte, error) {
	entities, err := readDir(b.opts.KeyringDir)
	if err != nil {
		return nil, err
	}
	e := find(entities, fingerprint)
	if e == nil {
		return nil, fmt.Errorf("%w: %s is not in %s", kerrors.ErrPublicKeyNotFound, fingerprint, b.opts.KeyringDir)
	}
	return armorPublic(e)
}

// GenerateKey implements backend.KeyManager. The new private key is written
// unprotected with owner-only permissions.
func (b *Backend) GenerateKey(ctx context.Context, name, email string) (backend.KeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return backend.KeyInfo{}, err
	}
	e, err := openpgp.NewEntity(name, "lockbox", email, b.config)
	if err != nil {
		return backend.KeyInfo{}, fmt.Errorf("failed to generate key: %w", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		return backend.KeyInfo{}, err
	}
	if err := e.SerializePrivate(w, b.config); err != nil {
		return backend.KeyInfo{}, fmt.Errorf("failed to serialize key: %w", err)
	}
	if err := w.Close(); err != nil {
		return backend.KeyInfo{}, err
	}

	info := keyInfo(e)
	if err := os.MkdirAll(b.opts.KeyringDir, 0700); err != nil {
		return backend.KeyInfo{}, fmt.Errorf("failed to create keyring: %w", err)
	}
	if err := utils.WriteFileAtomic(filepath.Join(b.opts.KeyringDir, info.Fingerprint+keyExt), buf.Bytes(), 0600); err != nil {
		return backend.KeyInfo{}, err
	}

	b.mu.Lock()
	b.secring = nil
	b.unlocked = false
	b.mu.Unlock()
	return info, nil
}

// ListKeys implements backend.KeyManager.
func (b *Backend) ListKeys(context.Context) ([]backend.KeyInfo, error) {
	entities, err := readDir(b.opts.KeyringDir)
	if err != nil {
		return nil, err
	}
	infos := make([]backend.KeyInfo, 0, len(entities))
	for _, e := range entities {
		infos = append(infos, keyInfo(e))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}

// RemoveKey implements backend.KeyManager. fingerprint may be a full
// fingerprint or a 64-bit key id.
func (b *Backend) RemoveKey(ctx context.Context, fingerprint string) (backend.KeyInfo, error) {
	if err := ctx.Err(); err != nil {
		return backend.KeyInfo{}, err
	}
	entries, err := os.ReadDir(b.opts.KeyringDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return backend.KeyInfo{}, fmt.Errorf("failed to read %s: %w", b.opts.KeyringDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyExt) {
			continue
		}
		path := filepath.Join(b.opts.KeyringDir, entry.Name())
		entities, err := readFile(path)
		if err != nil {
			return backend.KeyInfo{}, err
		}
		e := find(entities, fingerprint)
		if e == nil {
			continue
		}
		if len(entities) > 1 {
			return backend.KeyInfo{}, fmt.Errorf("%s holds %d keys; remove it by hand", path, len(entities))
		}
		if err := os.Remove(path); err != nil {
			return backend.KeyInfo{}, fmt.Errorf("failed to remove key: %w", err)
		}

		b.mu.Lock()
		b.secring = nil
		b.unlocked = false
		b.mu.Unlock()
		return keyInfo(e), nil
	}
	return backend.KeyInfo{}, fmt.Errorf("%w: %s is not in %s", kerrors.ErrKeyNotFound, fingerprint, b.opts.KeyringDir)
}

// publicKey loads the team key for fp.
func (b *Backend) publicKey(fp string) (*openpgp.Entity, error) {
	path := filepath.Join(b.opts.KeysDir, fp+keyExt)
	entities, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		all, dirErr := readDir(b.opts.KeysDir)
		if dirErr != nil {
			return nil, dirErr
		}
		entities = all
	} else if err != nil {
		return nil, err
	}
	e := find(entities, fp)
	if e == nil {
		return nil, fmt.Errorf("%w: no public key for %s in %s", kerrors.ErrPublicKeyNotFound, fp, b.opts.KeysDir)
	}
	return e, nil
}

// privateKeys loads and unlocks the caller's keyring once per backend.
func (b *Backend) privateKeys(ctx context.Context) (openpgp.EntityList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.secring == nil {
		entities, err := readDir(b.opts.KeyringDir)
		if err != nil {
			return nil, err
		}
		var secret openpgp.EntityList
		for _, e := range entities {
			if e.PrivateKey != nil {
				secret = append(secret, e)
			}
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("%w: no private keys in %s", kerrors.ErrUnauthorizedDecrypt, b.opts.KeyringDir)
		}
		b.secring = secret
	}

	if !b.unlocked {
		for _, e := range b.secring {
			if err := b.unlock(ctx, e); err != nil {
				return nil, err
			}
		}
		b.unlocked = true
	}
	return b.secring, nil
}

func (b *Backend) unlock(ctx context.Context, e *openpgp.Entity) error {
	keys := []*packet.PrivateKey{e.PrivateKey}
	for _, sub := range e.Subkeys {
		if sub.PrivateKey != nil {
			keys = append(keys, sub.PrivateKey)
		}
	}

	var passphrase []byte
	for _, k := range keys {
		if !k.Encrypted {
			continue
		}
		if passphrase == nil {
			p, err := b.opts.Passphrase(ctx, fingerprint(e))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				return fmt.Errorf("%w: %v", kerrors.ErrUnauthorizedDecrypt, err)
			}
			passphrase = p
		}
		if err := k.Decrypt(passphrase); err != nil {
			return fmt.Errorf("%w: wrong passphrase for %s", kerrors.ErrUnauthorizedDecrypt, fingerprint(e))
		}
	}
	return nil
}

func promptPassphrase(ctx context.Context, fp string) ([]byte, error) {
	return utils.ReadPassphraseFromTTY(ctx, fmt.Sprintf("Passphrase for %s: ", fp))
}

func dearmor(ciphertext []byte) (io.Reader, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte("-----BEGIN "+messageType)) {
		if len(ciphertext) == 0 || ciphertext[0]&0x80 == 0 {
			return nil, kerrors.ErrInvalidCiphertext
		}
		return bytes.NewReader(ciphertext), nil
	}
	block, err := armor.Decode(bytes.NewReader(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidCiphertext, err)
	}
	if block.Type != messageType {
		return nil, fmt.Errorf("%w: armor type %q", kerrors.ErrInvalidCiphertext, block.Type)
	}
	return block.Body, nil
}

func mapError(err error) error {
	var structural pgperrors.StructuralError
	var unsupported pgperrors.UnsupportedError
	var signature pgperrors.SignatureError
	switch {
	case errors.Is(err, kerrors.ErrUnauthorizedDecrypt):
		return err
	case errors.Is(err, pgperrors.ErrKeyIncorrect):
		return fmt.Errorf("%w: none of the keys in the keyring is a recipient", kerrors.ErrUnauthorizedDecrypt)
	case errors.As(err, &structural), errors.As(err, &unsupported), errors.As(err, &signature),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %v", kerrors.ErrInvalidCiphertext, err)
	default:
		return fmt.Errorf("failed to decrypt: %w", err)
	}
}

func readDir(dir string) (openpgp.EntityList, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var all openpgp.EntityList
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keyExt) {
			continue
		}
		entities, err := readFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, entities...)
	}
	return all, nil
}

func readFile(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key %s: %w", path, err)
	}
	return entities, nil
}

func armorPublic(e *openpgp.Entity) ([]byte, error) {
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := e.Serialize(w); err != nil {
		return nil, fmt.Errorf("failed to serialize public key: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// find returns the entity whose fingerprint ends with fp, so both full
// fingerprints and 64-bit key ids match.
func find(entities openpgp.EntityList, fp string) *openpgp.Entity {
	fp = strings.ToUpper(fp)
	for _, e := range entities {
		if strings.HasSuffix(fingerprint(e), fp) {
			return e
		}
	}
	return nil
}

func fingerprint(e *openpgp.Entity) string {
	return strings.ToUpper(hex.EncodeToString(e.PrimaryKey.Fingerprint[:]))
}

func keyInfo(e *openpgp.Entity) backend.KeyInfo {
	info := backend.KeyInfo{
		Fingerprint: fingerprint(e),
		CreatedAt:   e.PrimaryKey.CreationTime.UTC(),
		HasPrivate:  e.PrivateKey != nil,
	}
	for _, id := range e.Identities {
		if id.UserId != nil {
			info.Name = id.UserId.Name
			info.Email = id.UserId.Email
			break
		}
	}
	return info
}
