package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/PolarWolf314/lockbox/internal/audit"
	"github.com/PolarWolf314/lockbox/internal/backend"
	kerrors "github.com/PolarWolf314/lockbox/internal/errors"
	"github.com/PolarWolf314/lockbox/internal/gitfilter"
	logger "github.com/PolarWolf314/lockbox/internal/logging"
	"github.com/PolarWolf314/lockbox/internal/manifest"
	"github.com/PolarWolf314/lockbox/internal/registry"
	"github.com/PolarWolf314/lockbox/internal/secrets"
	"github.com/PolarWolf314/lockbox/internal/utils"
)

// TrackOptions configures the track workflow.
type TrackOptions struct {
	// Patterns are file paths, directories, or doublestar globs relative
	// to the working directory's project root.
	Patterns []string

	// FilterCommand is the executable git runs for the filter driver.
	FilterCommand string

	Backend backend.Backend
	Logger  logger.Logger
}

// TrackResult contains the outcome of a track operation.
type TrackResult struct {
	// Tracked are the newly tracked paths, sorted.
	Tracked []string

	// AlreadyTracked were matched but skipped.
	AlreadyTracked []string

	RecipientVersion int
}

// Track encrypts the matched files for the live recipient set, records
// them in the manifest, and routes them through the git filter.
//
// Returns ErrNoFilesFound if the patterns match nothing.
// Returns ErrAlreadyTracked if every matched file is already tracked.
// Returns ErrEmptyRecipientSet if the project has no active members.
func Track(ctx context.Context, opts TrackOptions) (*TrackResult, error) {
	p, err := openProject(opts.Backend, opts.Logger)
	if err != nil {
		return nil, err
	}
	root := p.settings.ProjectPath

	files, err := secrets.ResolveFiles(opts.Patterns, root)
	if err != nil {
		return nil, err
	}
	p.log.Debugf("Resolved %d file(s): %v", len(files), files)

	result := &TrackResult{}
	// New ciphertext is staged and promoted only once every file encrypted,
	// so a failed track leaves no unreferenced objects behind.
	area := p.staging.Area("track-" + uuid.NewString())
	defer func() {
		if err := area.RemoveAll(); err != nil {
			p.log.Warnf("Failed to clean up %s: %v", area.Dir, err)
		}
	}()

	m, err := p.store.Update(ctx, func(m *manifest.Manifest) error {
		result.Tracked, result.AlreadyTracked = nil, nil
		live := registry.New(m).ActiveRecipients()
		var staged []string

		for _, rel := range files {
			if _, ok := m.Get(rel); ok {
				result.AlreadyTracked = append(result.AlreadyTracked, rel)
				continue
			}
			if len(live.Fingerprints) == 0 {
				return fmt.Errorf("%w: add a member before tracking files", kerrors.ErrEmptyRecipientSet)
			}

			plaintext, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("reading %s: %w", rel, err)
			}
			ciphertext, err := p.crypto.Encrypt(ctx, plaintext, live.Fingerprints)
			if err != nil {
				return fmt.Errorf("encrypting %s: %w", rel, err)
			}
			digest, err := area.Put(ciphertext)
			if err != nil {
				return err
			}
			staged = append(staged, digest)
			if _, err := m.Track(rel, live.Version, digest, secrets.Digest(plaintext)); err != nil {
				return err
			}
			p.log.Infof("Tracked %s (%s)", rel, digest)
			result.Tracked = append(result.Tracked, rel)
		}

		if len(result.Tracked) == 0 {
			return fmt.Errorf("%w: %s", kerrors.ErrAlreadyTracked, utils.FormatPaths(result.AlreadyTracked))
		}
		for _, digest := range staged {
			if err := p.objects.Adopt(area, digest); err != nil {
				return err
			}
		}
		return nil
	})
	command := opts.FilterCommand
	if command == "" {
		command = DefaultFilterCommand
	}
	if errors.Is(err, kerrors.ErrAlreadyTracked) {
		// Re-tracking restores filter lines that were lost from .gitattributes.
		if installErr := gitfilter.Install(root, command, result.AlreadyTracked...); installErr != nil {
			p.log.Warnf("Failed to update %s: %v", gitfilter.AttributesFile, installErr)
		}
	}
	if err != nil {
		return nil, err
	}
	result.RecipientVersion = m.RecipientVersion

	if err := gitfilter.Install(root, command, append(result.Tracked, result.AlreadyTracked...)...); err != nil {
		return nil, fmt.Errorf("updating %s: %w", gitfilter.AttributesFile, err)
	}

	entry := audit.LogWithUser(audit.OpTrack)
	entry.Files = result.Tracked
	entry.RecipientVersion = m.RecipientVersion
	audit.Log(entry)

	return result, nil
}

// UntrackOptions configures the untrack workflow.
type UntrackOptions struct {
	Paths  []string
	Logger logger.Logger
}

// UntrackResult contains the outcome of an untrack operation.
type UntrackResult struct {
	Untracked     []string
	PrunedObjects int
}

// Untrack stops managing the given paths and deletes their ciphertext
// objects. The working tree files are left alone, and ciphertext already
// committed to git history is not touched.
//
// Returns ErrUntrackedFile if any path is not tracked; nothing is changed
// in that case.
func Untrack(ctx context.Context, opts UntrackOptions) (*UntrackResult, error) {
	p, err := openProject(nilBackend{}, opts.Logger)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(opts.Paths))
	for _, raw := range opts.Paths {
		rel, err := p.normalizePath(raw)
		if err != nil {
			return nil, err
		}
		paths = append(paths, rel)
	}
	if len(paths) == 0 {
		return nil, kerrors.ErrNoFilesFound
	}

	unlock, err := p.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	for _, rel := range paths {
		if _, err := m.Untrack(rel); err != nil {
			return nil, err
		}
	}
	m.PruneRecipientSets()
	if err := p.store.Save(m); err != nil {
		return nil, err
	}

	// Objects are pruned under the lock so a concurrent clean cannot lose
	// a freshly stored blob.
	pruned, err := p.objects.Prune(m.ReferencedObjects())
	if err != nil {
		p.log.Warnf("Failed to prune objects: %v", err)
	}

	if err := gitfilter.Uninstall(p.settings.ProjectPath, paths...); err != nil {
		return nil, fmt.Errorf("updating %s: %w", gitfilter.AttributesFile, err)
	}

	entry := audit.LogWithUser(audit.OpUntrack)
	entry.Files = paths
	audit.Log(entry)

	return &UntrackResult{Untracked: paths, PrunedObjects: pruned}, nil
}
