package backend

import (
	"context"
	"time"
)

// Backend performs public-key encryption for a set of recipient
// fingerprints and decryption with whatever private keys the caller holds.
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string

	// Encrypt returns ciphertext decryptable by every recipient.
	Encrypt(ctx context.Context, plaintext []byte, recipients []string) ([]byte, error)

	// Decrypt returns the plaintext, or ErrUnauthorizedDecrypt if none of
	// the caller's keys is a recipient.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyInfo describes a public key known to a backend.
type KeyInfo struct {
	Fingerprint string
	Name        string
	Email       string
	CreatedAt   time.Time
	HasPrivate  bool
}

// KeyPublisher is implemented by backends that need a member's public key
// before they can encrypt to it.
type KeyPublisher interface {
	PublishKey(ctx context.Context, fingerprint string, armored []byte) (KeyInfo, error)
}

// KeyExporter is implemented by backends that can export a public key from
// the caller's own keyring.
type KeyExporter interface {
	ExportPublicKey(ctx context.Context, fingerprint string) ([]byte, error)
}

// KeyManager is implemented by backends that manage the caller's personal keys.
type KeyManager interface {
	GenerateKey(ctx context.Context, name, email string) (KeyInfo, error)
	ListKeys(ctx context.Context) ([]KeyInfo, error)

	// RemoveKey deletes the key from the keyring and returns what it was.
	RemoveKey(ctx context.Context, fingerprint string) (KeyInfo, error)
}
