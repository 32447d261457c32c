package configs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

func TestFindRepositoryRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("PlainInit failed: %v", err)
	}
	nested := filepath.Join(root, "deploy", "prod")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("Failed to create nested dir: %v", err)
	}

	got, err := FindRepositoryRoot(nested)
	if err != nil {
		t.Fatalf("FindRepositoryRoot failed: %v", err)
	}

	gotReal, _ := filepath.EvalSymlinks(got)
	wantReal, _ := filepath.EvalSymlinks(root)
	if gotReal != wantReal {
		t.Errorf("Expected root %q, got %q", wantReal, gotReal)
	}
}

func TestFindRepositoryRootOutsideRepository(t *testing.T) {
	_, err := FindRepositoryRoot(t.TempDir())
	if !errors.Is(err, kerrors.ErrNotARepository) {
		t.Fatalf("Expected ErrNotARepository, got %v", err)
	}
}

func TestGitUserEmail(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("PlainInit failed: %v", err)
	}

	if got := GitUserEmail(root); got != "" {
		t.Errorf("Expected no email, got %q", got)
	}

	cfg, err := repo.Config()
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}
	cfg.User.Email = "alice@example.com"
	if err := repo.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}

	if got := GitUserEmail(root); got != "alice@example.com" {
		t.Errorf("Expected alice@example.com, got %q", got)
	}
}
