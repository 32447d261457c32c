package gitfilter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

func TestInstallConfiguresDriverAndAttributes(t *testing.T) {
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)

	require.NoError(t, Install(root, "lockbox", "a.env", "my secrets/b.env"))

	repo, err := git.PlainOpen(root)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	sub := cfg.Raw.Section("filter").Subsection(DriverName)
	assert.Equal(t, "lockbox filter clean %f", sub.Option("clean"))
	assert.Equal(t, "lockbox filter smudge %f", sub.Option("smudge"))
	assert.Equal(t, "true", sub.Option("required"))

	data, err := os.ReadFile(filepath.Join(root, AttributesFile))
	require.NoError(t, err)
	assert.Equal(t, "/a.env filter=lockbox\n/my[[:space:]]secrets/b.env filter=lockbox\n", string(data))

	paths, err := Attributed(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.env", "my secrets/b.env"}, paths)
}

func TestInstallIsIdempotentAndKeepsExistingLines(t *testing.T) {
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, AttributesFile), []byte("*.png binary\n"), 0644))

	require.NoError(t, Install(root, "lockbox", "a.env"))
	require.NoError(t, Install(root, "lockbox", "a.env"))

	data, err := os.ReadFile(filepath.Join(root, AttributesFile))
	require.NoError(t, err)
	assert.Equal(t, "*.png binary\n/a.env filter=lockbox\n", string(data))
}

func TestUninstallRemovesOnlyNamedPaths(t *testing.T) {
	root := t.TempDir()
	_, err := git.PlainInit(root, false)
	require.NoError(t, err)
	require.NoError(t, Install(root, "lockbox", "a.env", "b.env"))

	require.NoError(t, Uninstall(root, "a.env"))

	data, err := os.ReadFile(filepath.Join(root, AttributesFile))
	require.NoError(t, err)
	assert.Equal(t, "/b.env filter=lockbox\n", string(data))

	// The driver stays configured for b.env.
	repo, err := git.PlainOpen(root)
	require.NoError(t, err)
	cfg, err := repo.Config()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Raw.Section("filter").Subsection(DriverName).Option("clean"))
}

func TestInstallOutsideRepository(t *testing.T) {
	err := Install(t.TempDir(), "lockbox", "a.env")
	assert.ErrorIs(t, err, kerrors.ErrNotARepository)
}
