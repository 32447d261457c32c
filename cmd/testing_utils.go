package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/PolarWolf314/lockbox/internal/backend"
	"github.com/PolarWolf314/lockbox/internal/configs"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
)

// setupTestEnvironment creates a git repository in a temp dir, changes
// into it, and routes every command through b.
func setupTestEnvironment(t *testing.T, b backend.Backend) string {
	t.Helper()
	root := t.TempDir()
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("Failed to init git repository: %v", err)
	}
	t.Chdir(root)
	t.Setenv("LOCKBOX_KEYRING", filepath.Join(t.TempDir(), "keyring"))

	originalUserSettings := configs.UserLockboxSettings
	originalProjectSettings := configs.ProjectLockboxSettings
	t.Cleanup(func() {
		configs.UserLockboxSettings = originalUserSettings
		configs.ProjectLockboxSettings = originalProjectSettings
		ResetGlobalState()
	})

	configs.UserLockboxSettings = &configs.UserSettings{Username: "testuser"}
	ResetGlobalState()
	SetBackend(b)
	return root
}

// captureOutput captures both stdout and stderr during function execution.
func captureOutput(fn func() error) (string, error) {
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

// createTestCLI prepares RootCmd to run args with fresh flag state.
func createTestCLI(args ...string) *cobra.Command {
	SetLogger(logger.Logger{})
	resetFlags(RootCmd)
	RootCmd.SetArgs(args)
	RootCmd.SetIn(nil)
	RootCmd.SetOut(nil)
	return RootCmd
}

// runCLI executes args and returns the combined output.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return captureOutput(func() error {
		return createTestCLI(args...).Execute()
	})
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
