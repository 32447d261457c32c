package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/manifest"
)

const (
	fpA = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	fpB = "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
)

func TestNormalizeFingerprint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"aaaa bbbb cccc dddd", "AAAABBBBCCCCDDDD", false},
		{"0x0123456789abcdef", "0123456789ABCDEF", false},
		{"  " + fpA + "  ", fpA, false},
		{"1234", "", true},
		{"ZZZZZZZZZZZZZZZZ", "", true},
		{"0123456789ABCDE", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeFingerprint(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, kerrors.ErrInvalidFingerprint)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBatchedMutationsShareOneVersion(t *testing.T) {
	m := manifest.New()
	r := New(m)

	_, err := r.AddMember(fpA, "alice")
	require.NoError(t, err)
	_, err = r.AddMember(fpB, "bob")
	require.NoError(t, err)

	assert.Equal(t, 1, r.Version())
	assert.True(t, r.Changed())
	assert.Equal(t, []string{fpA, fpB}, r.ActiveRecipients().Fingerprints)
	assert.True(t, m.Dirty())
	require.NoError(t, m.Validate())
}

func TestEachTransactionBumpsVersion(t *testing.T) {
	m := manifest.New()
	_, err := New(m).AddMember(fpA, "alice")
	require.NoError(t, err)
	_, err = New(m).AddMember(fpB, "bob")
	require.NoError(t, err)

	_, revoked, err := New(m).RevokeMember(fpB)
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.Equal(t, 3, m.RecipientVersion)
	assert.Equal(t, []string{fpA}, m.LiveSet().Fingerprints)
	require.NoError(t, m.Validate())
}

func TestAddDuplicateActive(t *testing.T) {
	r := New(manifest.New())
	_, err := r.AddMember(fpA, "alice")
	require.NoError(t, err)

	_, err = r.AddMember(fpA, "alice again")
	assert.ErrorIs(t, err, kerrors.ErrDuplicateMember)
}

func TestRevokeUnknownAndRepeated(t *testing.T) {
	m := manifest.New()
	_, err := New(m).AddMember(fpA, "alice")
	require.NoError(t, err)

	_, _, err = New(m).RevokeMember(fpB)
	assert.ErrorIs(t, err, kerrors.ErrUnknownMember)

	_, revoked, err := New(m).RevokeMember(fpA)
	require.NoError(t, err)
	require.True(t, revoked)
	version := m.RecipientVersion

	r := New(m)
	mem, revoked, err := r.RevokeMember(fpA)
	require.NoError(t, err)
	assert.False(t, revoked)
	assert.False(t, mem.Active())
	assert.False(t, r.Changed())
	assert.Equal(t, version, m.RecipientVersion)
}

func TestReAddAfterRevocationKeepsHistory(t *testing.T) {
	m := manifest.New()
	_, err := New(m).AddMember(fpA, "alice")
	require.NoError(t, err)
	_, _, err = New(m).RevokeMember(fpA)
	require.NoError(t, err)
	_, err = New(m).AddMember(fpA, "alice")
	require.NoError(t, err)

	r := New(m)
	members := r.Members()
	require.Len(t, members, 2)
	assert.False(t, members[0].Active())
	assert.True(t, members[1].Active())

	latest, ok := r.Lookup(fpA)
	require.True(t, ok)
	assert.True(t, latest.Active())
	require.NoError(t, m.Validate())
}

func TestKeyIDResolvesToFullFingerprint(t *testing.T) {
	const full = "0123456789ABCDEF0123456789ABCDEF01234567"
	keyID := full[len(full)-16:]

	m := manifest.New()
	_, err := New(m).AddMember(full, "alice")
	require.NoError(t, err)

	_, err = New(m).AddMember(keyID, "alice again")
	assert.ErrorIs(t, err, kerrors.ErrDuplicateMember)

	got, ok := New(m).Lookup(keyID)
	require.True(t, ok)
	assert.Equal(t, full, got.Fingerprint)

	mem, revoked, err := New(m).RevokeMember(keyID)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Equal(t, full, mem.Fingerprint)
	assert.Empty(t, m.LiveSet().Fingerprints)

	_, revoked, err = New(m).RevokeMember(keyID)
	require.NoError(t, err)
	assert.False(t, revoked)

	_, _, err = New(m).RevokeMember("89ABCDEF01234566")
	assert.ErrorIs(t, err, kerrors.ErrUnknownMember)
}
