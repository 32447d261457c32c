// Package memory is an in-process crypto backend for tests. Ciphertext is
// a readable envelope naming its recipients, so it offers no secrecy, but
// it enforces the same authorization rules as a real backend: only a
// listed recipient can decrypt.
package memory

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PolarWolf314/lockbox/internal/backend"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

const magic = "LOCKBOX-MEMORY/1"

// Hook can fail a call. It receives the plaintext involved.
type Hook func(plaintext []byte) error

// Backend holds the private keys of one or more identities.
type Backend struct {
	mu         sync.Mutex
	identities []string
	published  map[string]backend.KeyInfo
	seq        int

	// BeforeEncrypt and BeforeDecrypt run before each call and can inject failures.
	BeforeEncrypt Hook
	BeforeDecrypt Hook

	// Delay makes every call block for the given duration or until the
	// context is done.
	Delay time.Duration

	encryptCalls int
	decryptCalls int
}

var (
	_ backend.Backend      = (*Backend)(nil)
	_ backend.KeyPublisher = (*Backend)(nil)
	_ backend.KeyExporter  = (*Backend)(nil)
)

// New returns a backend that can decrypt for the given identities.
func New(identities ...string) *Backend {
	return &Backend{
		identities: identities,
		published:  make(map[string]backend.KeyInfo),
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string {
	return "memory"
}

// Encrypt implements backend.Backend.
func (b *Backend) Encrypt(ctx context.Context, plaintext []byte, recipients []string) ([]byte, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.encryptCalls++
	b.seq++
	seq := b.seq
	hook := b.BeforeEncrypt
	b.mu.Unlock()

	if hook != nil {
		if err := hook(plaintext); err != nil {
			return nil, err
		}
	}
	if len(recipients) == 0 {
		return nil, kerrors.ErrEmptyRecipientSet
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\nrecipients: %s\nseq: %d\n\n", magic, strings.Join(recipients, ","), seq)
	buf.WriteString(base64.StdEncoding.EncodeToString(plaintext))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Decrypt implements backend.Backend.
func (b *Backend) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.decryptCalls++
	hook := b.BeforeDecrypt
	identities := slices.Clone(b.identities)
	b.mu.Unlock()

	recipients, plaintext, err := Open(ciphertext)
	if err != nil {
		return nil, err
	}
	if hook != nil {
		if err := hook(plaintext); err != nil {
			return nil, err
		}
	}
	for _, id := range identities {
		if slices.Contains(recipients, id) {
			return plaintext, nil
		}
	}
	return nil, fmt.Errorf("%w: ciphertext is for %s", kerrors.ErrUnauthorizedDecrypt, strings.Join(recipients, ","))
}

// PublishKey implements backend.KeyPublisher. The armored bytes are kept
// only as metadata.
func (b *Backend) PublishKey(_ context.Context, fingerprint string, armored []byte) (backend.KeyInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := backend.KeyInfo{
		Fingerprint: fingerprint,
		Name:        strings.TrimSpace(string(armored)),
		CreatedAt:   time.Now().UTC(),
		HasPrivate:  slices.Contains(b.identities, fingerprint),
	}
	b.published[fingerprint] = info
	return info, nil
}

// ExportPublicKey implements backend.KeyExporter for the backend's own
// identities. The "key" is the fingerprint itself.
func (b *Backend) ExportPublicKey(_ context.Context, fingerprint string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.identities, fingerprint) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrPublicKeyNotFound, fingerprint)
	}
	return []byte(fingerprint), nil
}

// Published reports whether PublishKey was called for fingerprint.
func (b *Backend) Published(fingerprint string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.published[fingerprint]
	return ok
}

// Calls returns how many encrypt and decrypt calls were made.
func (b *Backend) Calls() (encrypt, decrypt int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.encryptCalls, b.decryptCalls
}

// ResetCalls zeroes the call counters.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.encryptCalls, b.decryptCalls = 0, 0
}

// Open parses an envelope without any authorization check. Tests use it to
// inspect who a ciphertext was encrypted for.
func Open(ciphertext []byte) ([]string, []byte, error) {
	head, body, ok := bytes.Cut(ciphertext, []byte("\n\n"))
	if !ok {
		return nil, nil, kerrors.ErrInvalidCiphertext
	}
	lines := strings.Split(string(head), "\n")
	if len(lines) != 3 || lines[0] != magic {
		return nil, nil, kerrors.ErrInvalidCiphertext
	}
	list, ok := strings.CutPrefix(lines[1], "recipients: ")
	if !ok {
		return nil, nil, kerrors.ErrInvalidCiphertext
	}
	if _, err := strconv.Atoi(strings.TrimPrefix(lines[2], "seq: ")); err != nil {
		return nil, nil, kerrors.ErrInvalidCiphertext
	}
	plaintext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidCiphertext, err)
	}
	return strings.Split(list, ","), plaintext, nil
}

func (b *Backend) wait(ctx context.Context) error {
	if b.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(b.Delay):
		return nil
	}
}
