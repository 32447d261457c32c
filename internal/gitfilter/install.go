package gitfilter

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PolarWolf314/lockbox/internal/configs"
	"github.com/PolarWolf314/lockbox/internal/utils"
)

// DriverName is the filter name used in git config and .gitattributes.
const DriverName = "lockbox"

// AttributesFile is the attributes file at the work tree root.
const AttributesFile = ".gitattributes"

// Install registers the filter driver in the repository's git config and
// routes each of paths through it. command is the lockbox executable as
// git should invoke it. Installing twice is a no-op.
func Install(root, command string, paths ...string) error {
	repo, err := configs.OpenRepository(root)
	if err != nil {
		return err
	}
	cfg, err := repo.Config()
	if err != nil {
		return fmt.Errorf("failed to read git config: %w", err)
	}

	cfg.Raw.Section("filter").Subsection(DriverName).
		SetOption("clean", command+" filter clean %f").
		SetOption("smudge", command+" filter smudge %f").
		SetOption("required", "true")

	if err := repo.SetConfig(cfg); err != nil {
		return fmt.Errorf("failed to write git config: %w", err)
	}

	return editAttributes(root, func(lines []string) []string {
		present := make(map[string]bool)
		for _, l := range lines {
			present[l] = true
		}
		for _, p := range paths {
			if line := attributeLine(p); !present[line] {
				lines = append(lines, line)
				present[line] = true
			}
		}
		return lines
	})
}

// Uninstall stops routing paths through the filter. The driver itself
// stays configured for the remaining tracked files.
func Uninstall(root string, paths ...string) error {
	drop := make(map[string]bool)
	for _, p := range paths {
		drop[attributeLine(p)] = true
	}
	return editAttributes(root, func(lines []string) []string {
		kept := lines[:0]
		for _, l := range lines {
			if !drop[l] {
				kept = append(kept, l)
			}
		}
		return kept
	})
}

// Attributed returns the paths that .gitattributes routes through the filter.
func Attributed(root string) ([]string, error) {
	lines, err := readAttributes(root)
	if err != nil {
		return nil, err
	}
	var paths []string
	suffix := " filter=" + DriverName
	for _, l := range lines {
		if p, ok := strings.CutSuffix(l, suffix); ok {
			p = strings.TrimPrefix(p, "/")
			paths = append(paths, strings.ReplaceAll(p, "[[:space:]]", " "))
		}
	}
	return paths, nil
}

// attributeLine renders the .gitattributes line for path. Attribute
// patterns cannot contain literal spaces.
func attributeLine(path string) string {
	pattern := "/" + strings.TrimPrefix(filepath.ToSlash(path), "/")
	return strings.ReplaceAll(pattern, " ", "[[:space:]]") + " filter=" + DriverName
}

func readAttributes(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, AttributesFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", AttributesFile, err)
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

func editAttributes(root string, edit func([]string) []string) error {
	lines, err := readAttributes(root)
	if err != nil {
		return err
	}
	before := strings.Join(lines, "\n")
	lines = edit(lines)
	if strings.Join(lines, "\n") == before {
		return nil
	}

	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	// #nosec G306 -- .gitattributes is committed.
	return utils.WriteFileAtomic(filepath.Join(root, AttributesFile), buf.Bytes(), 0644)
}
