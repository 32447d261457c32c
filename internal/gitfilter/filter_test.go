package gitfilter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/backend/memory"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/registry"
	"github.com/PolarWolf314/lockbox/internal/secrets"
)

const (
	fpA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	fpB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func newTestFilter(t *testing.T, identity string, members ...string) (*Filter, *memory.Backend) {
	t.Helper()
	dir := t.TempDir()

	store := manifest.NewStore(filepath.Join(dir, "manifest.toml"), filepath.Join(dir, "manifest.lock"), time.Second)
	m := manifest.New()
	r := registry.New(m)
	for _, fp := range members {
		_, err := r.AddMember(fp, fp[:4])
		require.NoError(t, err)
	}
	m.ReconciledVersion = m.RecipientVersion
	require.NoError(t, store.Create(context.Background(), m))

	mem := memory.New(identity)
	return &Filter{
		Store:   store,
		Objects: secrets.NewObjectStore(filepath.Join(dir, "objects")),
		Crypto:  backend.NewAdapter(mem, backend.Options{Timeout: time.Second, RetryInterval: time.Millisecond}),
	}, mem
}

func clean(t *testing.T, f *Filter, path, content string) ([]byte, *CleanResult) {
	t.Helper()
	var out bytes.Buffer
	res, err := f.Clean(context.Background(), path, bytes.NewBufferString(content), &out)
	require.NoError(t, err)
	return out.Bytes(), res
}

func TestCleanTracksNewFile(t *testing.T) {
	f, _ := newTestFilter(t, fpA, fpA, fpB)

	ct, res := clean(t, f, "config/prod.env", "TOKEN=abc")
	assert.True(t, res.Tracked)
	assert.False(t, res.Reused)
	assert.Equal(t, 1, res.RecipientVersion)

	recipients, pt, err := memory.Open(ct)
	require.NoError(t, err)
	assert.Equal(t, []string{fpA, fpB}, recipients)
	assert.Equal(t, "TOKEN=abc", string(pt))

	m, err := f.Store.Load()
	require.NoError(t, err)
	tf, ok := m.Get("config/prod.env")
	require.True(t, ok)
	assert.Equal(t, secrets.Digest(ct), tf.CiphertextDigest)
	assert.Equal(t, secrets.Digest([]byte("TOKEN=abc")), tf.PlaintextDigest)
	assert.True(t, f.Objects.Has(tf.CiphertextDigest))
}

func TestCleanUnchangedReemitsStoredCiphertext(t *testing.T) {
	f, mem := newTestFilter(t, fpA, fpA)

	first, _ := clean(t, f, "a.env", "A=1")
	mem.ResetCalls()

	second, res := clean(t, f, "a.env", "A=1")
	assert.True(t, res.Reused)
	assert.Equal(t, first, second)

	enc, _ := mem.Calls()
	assert.Zero(t, enc)
}

func TestCleanChangedContentReencrypts(t *testing.T) {
	f, _ := newTestFilter(t, fpA, fpA)

	first, _ := clean(t, f, "a.env", "A=1")
	second, res := clean(t, f, "a.env", "A=2")
	assert.False(t, res.Reused)
	assert.False(t, res.Tracked)
	assert.NotEqual(t, first, second)

	m, err := f.Store.Load()
	require.NoError(t, err)
	assert.Equal(t, secrets.Digest([]byte("A=2")), m.Files["a.env"].PlaintextDigest)
}

func TestCleanStaleFileUsesLiveSet(t *testing.T) {
	f, _ := newTestFilter(t, fpA, fpA, fpB)
	clean(t, f, "a.env", "A=1")

	_, err := f.Store.Update(context.Background(), func(m *manifest.Manifest) error {
		_, _, err := registry.New(m).RevokeMember(fpB)
		return err
	})
	require.NoError(t, err)

	ct, res := clean(t, f, "a.env", "A=1")
	assert.False(t, res.Reused)
	assert.Equal(t, 2, res.RecipientVersion)

	recipients, _, err := memory.Open(ct)
	require.NoError(t, err)
	assert.Equal(t, []string{fpA}, recipients)
}

func TestCleanWithoutMembers(t *testing.T) {
	f, _ := newTestFilter(t, fpA)

	var out bytes.Buffer
	_, err := f.Clean(context.Background(), "a.env", bytes.NewBufferString("A=1"), &out)
	assert.ErrorIs(t, err, kerrors.ErrEmptyRecipientSet)
	assert.Zero(t, out.Len())
}

func TestCleanCorruptStoredObject(t *testing.T) {
	f, _ := newTestFilter(t, fpA, fpA)
	ct, _ := clean(t, f, "a.env", "A=1")
	require.NoError(t, os.WriteFile(f.Objects.Path(secrets.Digest(ct)), []byte("garbage"), 0644))

	var out bytes.Buffer
	_, err := f.Clean(context.Background(), "a.env", bytes.NewBufferString("A=1"), &out)

	var corrupt *kerrors.CorruptManifestError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, "a.env", corrupt.Path)
	assert.Zero(t, out.Len())
}

func TestSmudgeRoundTrip(t *testing.T) {
	f, _ := newTestFilter(t, fpA, fpA, fpB)
	ct, _ := clean(t, f, "a.env", "PASSWORD=x\n")

	var out bytes.Buffer
	require.NoError(t, f.Smudge(context.Background(), "a.env", bytes.NewReader(ct), &out))
	assert.Equal(t, "PASSWORD=x\n", out.String())
}

func TestSmudgeFailuresWriteNothing(t *testing.T) {
	f, _ := newTestFilter(t, fpA, fpA)
	outsider, _ := newTestFilter(t, fpB, fpA)
	ct, _ := clean(t, f, "a.env", "A=1")

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"unauthorized", ct, kerrors.ErrUnauthorizedDecrypt},
		{"plaintext input", []byte("A=1\n"), kerrors.ErrInvalidCiphertext},
		{"empty input", nil, kerrors.ErrInvalidCiphertext},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := outsider.Smudge(context.Background(), "a.env", bytes.NewReader(tc.input), &out)
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, out.Len())
		})
	}
}
