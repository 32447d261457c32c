package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

func TestRoundTripForRecipient(t *testing.T) {
	ctx := context.Background()
	alice := New("A")
	bob := New("B")

	ct, err := alice.Encrypt(ctx, []byte("secret"), []string{"A", "B"})
	require.NoError(t, err)

	pt, err := bob.Decrypt(ctx, ct)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pt))

	recipients, _, err := Open(ct)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, recipients)
}

func TestNonRecipientIsUnauthorized(t *testing.T) {
	ctx := context.Background()
	ct, err := New("A").Encrypt(ctx, []byte("secret"), []string{"A"})
	require.NoError(t, err)

	_, err = New("C").Decrypt(ctx, ct)
	assert.ErrorIs(t, err, kerrors.ErrUnauthorizedDecrypt)
}

func TestRejectsForeignInput(t *testing.T) {
	_, err := New("A").Decrypt(context.Background(), []byte("PLAIN=text\n"))
	assert.ErrorIs(t, err, kerrors.ErrInvalidCiphertext)
}

func TestEncryptIsNotDeterministic(t *testing.T) {
	ctx := context.Background()
	b := New("A")
	first, err := b.Encrypt(ctx, []byte("x"), []string{"A"})
	require.NoError(t, err)
	second, err := b.Encrypt(ctx, []byte("x"), []string{"A"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	enc, dec := b.Calls()
	assert.Equal(t, 2, enc)
	assert.Equal(t, 0, dec)
}
