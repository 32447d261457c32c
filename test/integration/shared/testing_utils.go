// Package shared contains testing utilities shared between integration tests.
// The tests drive the real CLI with the OpenPGP backend against temporary
// git repositories and keyrings.
package shared

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/PolarWolf314/lockbox/cmd"
	"github.com/PolarWolf314/lockbox/internal/configs"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/secrets"
	"github.com/PolarWolf314/lockbox/internal/workflows"
)

// SetupTestEnvironment creates a git repository in a temp dir and changes into it.
func SetupTestEnvironment(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("Failed to init git repository: %v", err)
	}
	t.Chdir(root)

	originalUserSettings := configs.UserLockboxSettings
	originalProjectSettings := configs.ProjectLockboxSettings
	t.Cleanup(func() {
		configs.UserLockboxSettings = originalUserSettings
		configs.ProjectLockboxSettings = originalProjectSettings
		cmd.ResetGlobalState()
	})
	configs.UserLockboxSettings = &configs.UserSettings{Username: "testuser"}
	cmd.ResetGlobalState()
	return root
}

// UseKeyring points every following command at keyring.
func UseKeyring(t *testing.T, keyring string) {
	t.Helper()
	t.Setenv("LOCKBOX_KEYRING", keyring)
}

// GenerateKey creates a key in a fresh keyring, switches to that keyring,
// and returns both.
func GenerateKey(t *testing.T, name string) (fingerprint, keyring string) {
	t.Helper()
	keyring = filepath.Join(t.TempDir(), name)
	UseKeyring(t, keyring)

	MustRun(t, "key", "generate", "--name", name, "--email", name+"@example.com")

	keys, err := workflows.KeyList(context.Background(), workflows.KeyListOptions{})
	if err != nil || len(keys) != 1 {
		t.Fatalf("Expected one key in %s, got %d (%v)", keyring, len(keys), err)
	}
	return keys[0].Fingerprint, keyring
}

// RunCLI executes the CLI with args and returns the combined output.
func RunCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return CaptureOutput(func() error {
		root := prepare(args...)
		root.SetIn(nil)
		root.SetOut(nil)
		return root.Execute()
	})
}

// MustRun is RunCLI that fails the test on error.
func MustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := RunCLI(t, args...)
	if err != nil {
		t.Fatalf("lockbox %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
	return output
}

// RunFilter runs `lockbox filter <mode> <path>` with input on stdin the
// way git does, returning stdout.
func RunFilter(t *testing.T, mode, path string, input []byte) ([]byte, error) {
	t.Helper()
	var out bytes.Buffer
	_, err := CaptureOutput(func() error {
		root := prepare("filter", mode, path)
		root.SetIn(bytes.NewReader(input))
		root.SetOut(&out)
		return root.Execute()
	})
	return out.Bytes(), err
}

func prepare(args ...string) *cobra.Command {
	cmd.SetLogger(logger.Logger{})
	root := cmd.GetRootCmd()
	resetFlags(root)
	root.SetArgs(args)
	return root
}

// resetFlags clears the Changed marks cobra leaves behind between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) { f.Changed = false }
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// CaptureOutput captures both stdout and stderr during function execution.
func CaptureOutput(fn func() error) (string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	os.Stdout = w
	os.Stderr = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	runErr := fn()

	w.Close()
	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-done, runErr
}

// ReadObject returns the committed ciphertext for a tracked path.
func ReadObject(t *testing.T, root, path string) []byte {
	t.Helper()
	settings := configs.NewProjectSettings(root)
	m, err := manifest.NewStore(settings.ManifestPath, settings.LockPath, 0).Load()
	if err != nil {
		t.Fatalf("Failed to load manifest: %v", err)
	}
	f, ok := m.Get(path)
	if !ok {
		t.Fatalf("%s is not tracked", path)
	}
	data, err := secrets.NewObjectStore(settings.ObjectsPath).Get(f.CiphertextDigest)
	if err != nil {
		t.Fatalf("Failed to read object for %s: %v", path, err)
	}
	return data
}
