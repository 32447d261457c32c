package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

// writeTestFile is a helper to write test files with 0644 permissions.
// #nosec G306 -- Test files are temporary and don't contain sensitive data.
func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil { // #nosec G306
		t.Fatalf("Failed to create test file: %v", err)
	}
}

func TestResolveFiles_EmptyPatterns(t *testing.T) {
	files, err := ResolveFiles([]string{}, t.TempDir())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if files != nil {
		t.Errorf("Expected nil, got: %v", files)
	}
}

func TestResolveFiles_SingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "config", "db.env"), "PASSWORD=x")

	files, err := ResolveFiles([]string{"config/db.env"}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"config/db.env"}) {
		t.Errorf("Expected [config/db.env], got: %v", files)
	}
}

func TestResolveFiles_DoubleStarGlob(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "a.key"), "1")
	writeTestFile(t, filepath.Join(tmpDir, "deploy", "prod", "b.key"), "2")
	writeTestFile(t, filepath.Join(tmpDir, "deploy", "readme.md"), "3")
	writeTestFile(t, filepath.Join(tmpDir, ".lockbox", "keys", "c.key"), "4")

	files, err := ResolveFiles([]string{"**/*.key"}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	want := []string{"a.key", "deploy/prod/b.key"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Expected %v, got: %v", want, files)
	}
}

func TestResolveFiles_DirectorySkipsReserved(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "secrets", "one.txt"), "1")
	writeTestFile(t, filepath.Join(tmpDir, "secrets", ".git", "HEAD"), "ref")

	files, err := ResolveFiles([]string{"secrets"}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"secrets/one.txt"}) {
		t.Errorf("Expected [secrets/one.txt], got: %v", files)
	}
}

func TestResolveFiles_Deduplicates(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "x.env"), "1")

	files, err := ResolveFiles([]string{"x.env", "*.env", filepath.Join(tmpDir, "x.env")}, tmpDir)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected 1 file, got: %v", files)
	}
}

func TestResolveFiles_Missing(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := ResolveFiles([]string{"nope.env"}, tmpDir)
	if !errors.Is(err, kerrors.ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got: %v", err)
	}

	_, err = ResolveFiles([]string{"*.nothing"}, tmpDir)
	if !errors.Is(err, kerrors.ErrNoFilesFound) {
		t.Errorf("Expected ErrNoFilesFound, got: %v", err)
	}
}

func TestNormalizePath(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"Relative", "a/b.env", "a/b.env", false},
		{"Absolute", filepath.Join(root, "c.env"), "c.env", false},
		{"Cleaned", "a/../d.env", "d.env", false},
		{"Escapes", "../outside.env", "", true},
		{"Root", ".", "", true},
		{"Reserved", ".lockbox/manifest.toml", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePath(root, tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error for %q, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
