package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
)

// skippedDirs are never searched for files to track.
var skippedDirs = map[string]bool{
	".lockbox": true,
	".git":     true,
}

// NormalizePath converts a user-supplied path into the repository-relative,
// slash-separated form used as a manifest key. Paths outside projectPath
// are rejected.
func NormalizePath(projectPath, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(projectPath, path)
	}
	rel, err := filepath.Rel(projectPath, abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s is outside the repository", kerrors.ErrFileNotFound, path)
	}
	if isInSkippedDir(rel) {
		return "", fmt.Errorf("%w: %s is inside a reserved directory", kerrors.ErrFileNotFound, path)
	}
	return rel, nil
}

// ResolveFiles takes user-provided paths/globs and returns the matching
// files as sorted repository-relative paths. Directories are searched
// recursively. Globs support ** via doublestar.
func ResolveFiles(patterns []string, projectPath string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)

	for _, pattern := range patterns {
		resolved, err := resolvePattern(pattern, projectPath)
		if err != nil {
			return nil, err
		}

		for _, f := range resolved {
			rel, err := NormalizePath(projectPath, f)
			if err != nil {
				continue
			}
			seen[rel] = true
		}
	}

	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrNoFilesFound, strings.Join(patterns, " "))
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func resolvePattern(pattern string, projectPath string) ([]string, error) {
	absPattern := pattern
	if !filepath.IsAbs(pattern) {
		absPattern = filepath.Join(projectPath, pattern)
	}

	info, err := os.Stat(absPattern)
	if err == nil && info.IsDir() {
		return findFilesInDir(absPattern)
	}

	if strings.ContainsAny(pattern, "*?[{") {
		return expandGlob(absPattern, pattern)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrFileNotFound, pattern)
	}

	return []string{absPattern}, nil
}

func expandGlob(absPattern, pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(absPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	var filtered []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		filtered = append(filtered, m)
	}

	return filtered, nil
}

func findFilesInDir(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

func isInSkippedDir(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if skippedDirs[part] {
			return true
		}
	}
	return false
}
